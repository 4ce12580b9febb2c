package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"movie-discovery-service/internal/models"
	"movie-discovery-service/internal/service"
	"movie-discovery-service/internal/tmdb"
)

// MovieHandler handles HTTP requests for the discovery pipeline.
type MovieHandler struct {
	svc *service.DiscoveryService
}

// NewMovieHandler creates a new MovieHandler.
func NewMovieHandler(svc *service.DiscoveryService) *MovieHandler {
	return &MovieHandler{svc: svc}
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health returns service health status.
func (h *MovieHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "movie-discovery-service",
	})
}

// Trending returns the daily trending page.
func (h *MovieHandler) Trending(c fiber.Ctx) error {
	return h.listCategory(c, h.svc.Trending)
}

// Popular returns the popular page.
func (h *MovieHandler) Popular(c fiber.Ctx) error {
	return h.listCategory(c, h.svc.Popular)
}

// TopRated returns the top-rated page.
func (h *MovieHandler) TopRated(c fiber.Ctx) error {
	return h.listCategory(c, h.svc.TopRated)
}

// NowPlaying returns the now-playing page.
func (h *MovieHandler) NowPlaying(c fiber.Ctx) error {
	return h.listCategory(c, h.svc.NowPlaying)
}

// Upcoming returns the upcoming page.
func (h *MovieHandler) Upcoming(c fiber.Ctx) error {
	return h.listCategory(c, h.svc.Upcoming)
}

func (h *MovieHandler) listCategory(c fiber.Ctx, list func(ctx context.Context, page int) (*models.PageResult, error)) error {
	result, err := list(c.Context(), fiber.Query(c, "page", 1))
	if err != nil {
		return h.apiError(c, "failed to retrieve movies", err)
	}
	return c.JSON(result)
}

// Search runs a debounced movie title search.
func (h *MovieHandler) Search(c fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query parameter is required"})
	}

	result, err := h.svc.Search(c.Context(), query, fiber.Query(c, "page", 1))
	if err != nil {
		return h.apiError(c, "search failed", err)
	}
	return c.JSON(result)
}

// MovieDetail returns detailed info for a single movie.
func (h *MovieHandler) MovieDetail(c fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid movie ID"})
	}

	detail, err := h.svc.MovieDetail(c.Context(), id)
	if err != nil {
		return h.apiError(c, "failed to retrieve movie details", err)
	}
	return c.JSON(detail)
}

// Videos returns trailers and teasers for a movie.
func (h *MovieHandler) Videos(c fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid movie ID"})
	}

	videos, err := h.svc.Videos(c.Context(), id)
	if err != nil {
		return h.apiError(c, "failed to retrieve videos", err)
	}
	return c.JSON(videos)
}

// Credits returns cast and crew for a movie.
func (h *MovieHandler) Credits(c fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid movie ID"})
	}

	credits, err := h.svc.Credits(c.Context(), id)
	if err != nil {
		return h.apiError(c, "failed to retrieve credits", err)
	}
	return c.JSON(credits)
}

// Recommendations returns scorer-ranked movies for the user.
func (h *MovieHandler) Recommendations(c fiber.Ctx) error {
	resp, err := h.svc.Recommendations(c.Context(), fiber.Query(c, "limit", 20))
	if err != nil {
		return h.apiError(c, "failed to generate recommendations", err)
	}
	return c.JSON(resp)
}

// CreateInteraction records a swipe/interaction against a movie.
func (h *MovieHandler) CreateInteraction(c fiber.Ctx) error {
	var req models.CreateInteractionRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.MovieID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "movie_id is required"})
	}
	if !models.ValidActions[req.Action] {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid action"})
	}

	if err := h.svc.RecordInteraction(c.Context(), req.MovieID, req.Action); err != nil {
		return h.apiError(c, "failed to record interaction", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "interaction recorded",
	})
}

// Preferences returns the learned preference profile summary.
func (h *MovieHandler) Preferences(c fiber.Ctx) error {
	return c.JSON(h.svc.Preferences())
}

// ResetPreferences clears the profile and its persisted state.
func (h *MovieHandler) ResetPreferences(c fiber.Ctx) error {
	h.svc.ResetPreferences(c.Context())
	return c.JSON(fiber.Map{
		"message": "preferences reset",
	})
}

// apiError maps the client error taxonomy onto HTTP statuses. A credential
// problem surfaces distinctly from a transient failure.
func (h *MovieHandler) apiError(c fiber.Ctx, msg string, err error) error {
	var apiErr *tmdb.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case tmdb.KindUnauthorized:
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "TMDB API key missing or invalid"})
		case tmdb.KindInvalidRequest:
			status := fiber.StatusBadRequest
			if apiErr.Status == fiber.StatusNotFound {
				status = fiber.StatusNotFound
			}
			return c.Status(status).JSON(ErrorResponse{Error: msg})
		case tmdb.KindRateLimited, tmdb.KindServer, tmdb.KindTransport:
			slog.Warn("upstream unavailable", "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "catalog temporarily unavailable, try again"})
		}
	}
	slog.Error(msg, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: msg})
}

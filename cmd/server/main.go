package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"movie-discovery-service/internal/cache"
	"movie-discovery-service/internal/config"
	"movie-discovery-service/internal/database"
	"movie-discovery-service/internal/handler"
	"movie-discovery-service/internal/keystore"
	"movie-discovery-service/internal/recommend"
	"movie-discovery-service/internal/repository"
	"movie-discovery-service/internal/service"
	"movie-discovery-service/internal/tmdb"
)

func main() {
	// Structured logging
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Resolve the TMDB API key from the keystore, migrating the plaintext
	// config value on first run
	apiKey, err := keystore.Resolve(keystore.NewFileStore(cfg.TMDB.KeyFile), cfg.TMDB.APIKey)
	if err != nil {
		slog.Error("no TMDB API key available", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL (non-fatal; the durable interaction log is
	// optional)
	var interactions *repository.InteractionRepository
	db, err := database.NewPostgres(cfg.DB)
	if err != nil {
		slog.Warn("PostgreSQL unavailable, running without durable interaction log", "error", err)
	} else {
		defer db.Close()
		interactions = repository.NewInteractionRepository(db)
	}

	// Connect to Redis (non-fatal if unavailable)
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, running without shared response cache", "error", err)
	}

	// Initialize TMDB client
	tmdbClient := tmdb.NewClient(apiKey, cfg.TMDB.BaseURL, tmdb.WithRetryPolicy(tmdb.RetryPolicy{
		MaxRetries: cfg.TMDB.MaxRetries,
		BaseDelay:  cfg.TMDB.BaseDelay,
		MaxDelay:   cfg.TMDB.MaxDelay,
	}))

	// Offline cache and preference scorer
	movieCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxEntries, cfg.Cache.DiskRetention)
	if err != nil {
		slog.Error("failed to initialize movie cache", "error", err)
		os.Exit(1)
	}
	scorer := recommend.NewScorer(cfg.Recommend.ProfileFile, cfg.Recommend.MaxHistorySize, cfg.Recommend.Retention)

	// Wire the pipeline
	svc := service.NewDiscoveryService(tmdbClient, movieCache, scorer, interactions, rdb, service.Options{
		CoalesceTTL:      cfg.Cache.DefaultTTL,
		DebounceInterval: cfg.Search.DebounceInterval,
		BatchChunkSize:   cfg.Batch.ChunkSize,
		BatchChunkPause:  cfg.Batch.ChunkPause,
	})
	svc.RestoreProfile(cfg.Recommend.MaxHistorySize)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	movieCache.StartSweeper(sweepCtx, 15*time.Minute)

	h := handler.NewMovieHandler(svc)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Movie Discovery Service",
		ServerHeader: "Movie-Discovery",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("unhandled error", "error", err, "status", code)
			return c.Status(code).JSON(handler.ErrorResponse{Error: err.Error()})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// API routes
	api := app.Group("/api/v1")
	api.Get("/health", h.Health)
	api.Get("/movies/trending", h.Trending)
	api.Get("/movies/popular", h.Popular)
	api.Get("/movies/top-rated", h.TopRated)
	api.Get("/movies/now-playing", h.NowPlaying)
	api.Get("/movies/upcoming", h.Upcoming)
	api.Get("/movies/search", h.Search)
	api.Get("/movies/:id", h.MovieDetail)
	api.Get("/movies/:id/videos", h.Videos)
	api.Get("/movies/:id/credits", h.Credits)
	api.Get("/recommendations", h.Recommendations)
	api.Post("/interactions", h.CreateInteraction)
	api.Get("/preferences", h.Preferences)
	api.Delete("/preferences", h.ResetPreferences)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutting down movie discovery service...")
		stopSweeper()
		svc.Shutdown()
		_ = app.Shutdown()
	}()

	// Start server
	addr := ":" + cfg.Port
	slog.Info("starting movie discovery service", "addr", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

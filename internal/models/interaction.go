package models

import "time"

// Action is a user swipe/interaction kind.
type Action string

const (
	ActionLiked      Action = "liked"
	ActionSuperLiked Action = "super_liked"
	ActionSkipped    Action = "skipped"
	ActionWatchLater Action = "watch_later"
	ActionViewed     Action = "viewed"
)

// ValidActions maps accepted interaction types from the API.
var ValidActions = map[Action]bool{
	ActionLiked:      true,
	ActionSuperLiked: true,
	ActionSkipped:    true,
	ActionWatchLater: true,
	ActionViewed:     true,
}

// InteractionEvent is one append-only log entry of a user acting on a movie.
type InteractionEvent struct {
	MovieID     int       `json:"movie_id"`
	Action      Action    `json:"action"`
	GenreIDs    []int     `json:"genre_ids"`
	Rating      float64   `json:"rating"`
	ReleaseYear int       `json:"release_year"`
	Timestamp   time.Time `json:"timestamp"`
}

// CreateInteractionRequest is the request body for recording an interaction.
type CreateInteractionRequest struct {
	MovieID int    `json:"movie_id"`
	Action  Action `json:"action"`
}

// PreferenceSummary is the response shape for the preferences endpoint.
type PreferenceSummary struct {
	TopGenres      []GenreWeight `json:"top_genres"`
	DislikedGenres []GenreWeight `json:"disliked_genres"`
	RatingLow      float64       `json:"rating_low"`
	RatingHigh     float64       `json:"rating_high"`
	HistorySize    int           `json:"history_size"`
}

// GenreWeight pairs a genre id with its learned weight.
type GenreWeight struct {
	GenreID int     `json:"genre_id"`
	Weight  float64 `json:"weight"`
}

// ScoredMovie is a movie with its recommendation score attached.
type ScoredMovie struct {
	Movie
	Score float64 `json:"score"`
}

// RecommendationResponse is the recommendations endpoint payload.
type RecommendationResponse struct {
	Recommendations []ScoredMovie `json:"recommendations"`
	GeneratedAt     string        `json:"generated_at"`
}

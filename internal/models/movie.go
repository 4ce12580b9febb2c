package models

import (
	"strconv"
	"time"
)

// Movie is a catalog item as returned by TMDB list endpoints.
// Identity is the TMDB id alone: two movies with the same ID are the same
// movie regardless of any other field drift between endpoints.
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	Adult            bool    `json:"adult"`
}

// ReleaseYear parses the year out of the release date, or 0 if unknown.
func (m Movie) ReleaseYear() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// PosterURL returns the full poster image URL, or "" if no poster.
func (m Movie) PosterURL() string {
	if m.PosterPath == "" {
		return ""
	}
	return TMDBImageBaseW500 + m.PosterPath
}

// BackdropURL returns the full backdrop image URL, or "" if no backdrop.
func (m Movie) BackdropURL() string {
	if m.BackdropPath == "" {
		return ""
	}
	return TMDBImageBaseW780 + m.BackdropPath
}

// PageResult is the fixed TMDB page wrapper for list endpoints.
type PageResult struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// CacheCategory is a named bucket of catalog data with its own freshness
// policy.
type CacheCategory string

const (
	CategoryTrending         CacheCategory = "trending"
	CategoryPopular          CacheCategory = "popular"
	CategoryTopRated         CacheCategory = "top_rated"
	CategoryNowPlaying       CacheCategory = "now_playing"
	CategoryUpcoming         CacheCategory = "upcoming"
	CategoryRecent           CacheCategory = "recent"
	CategorySearch           CacheCategory = "search"
	CategoryWatchlistRelated CacheCategory = "watchlist_related"
	CategoryRecommendations  CacheCategory = "recommendations"
)

// Categories lists every known cache category.
var Categories = []CacheCategory{
	CategoryTrending,
	CategoryPopular,
	CategoryTopRated,
	CategoryNowPlaying,
	CategoryUpcoming,
	CategoryRecent,
	CategorySearch,
	CategoryWatchlistRelated,
	CategoryRecommendations,
}

// TTL returns how long entries cached under this category stay fresh.
// Volatile sources (search-as-you-type, recents) expire fast; editorial
// lists like top-rated barely move and keep for a day.
func (c CacheCategory) TTL() time.Duration {
	switch c {
	case CategoryTrending:
		return 1 * time.Hour
	case CategoryPopular:
		return 3 * time.Hour
	case CategoryTopRated:
		return 24 * time.Hour
	case CategoryNowPlaying:
		return 12 * time.Hour
	case CategoryUpcoming:
		return 24 * time.Hour
	case CategoryRecent:
		return 30 * time.Minute
	case CategorySearch:
		return 30 * time.Minute
	case CategoryWatchlistRelated:
		return 6 * time.Hour
	case CategoryRecommendations:
		return 1 * time.Hour
	default:
		return 1 * time.Hour
	}
}

// Valid reports whether c is one of the known categories.
func (c CacheCategory) Valid() bool {
	switch c {
	case CategoryTrending, CategoryPopular, CategoryTopRated,
		CategoryNowPlaying, CategoryUpcoming, CategoryRecent,
		CategorySearch, CategoryWatchlistRelated, CategoryRecommendations:
		return true
	}
	return false
}

const (
	TMDBImageBaseW500 = "https://image.tmdb.org/t/p/w500"
	TMDBImageBaseW780 = "https://image.tmdb.org/t/p/w780"
)

package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"movie-discovery-service/internal/models"
)

// InteractionRepository is the durable interaction log. The scorer's JSON
// profile is the working copy; this log is the rebuild source when that
// file is missing.
type InteractionRepository struct {
	db *sql.DB
}

// NewInteractionRepository creates a new InteractionRepository.
func NewInteractionRepository(db *sql.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Insert appends one interaction event.
func (r *InteractionRepository) Insert(ev models.InteractionEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO interactions (movie_id, action, genre_ids, rating, release_year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.MovieID, string(ev.Action), pq.Array(ev.GenreIDs), ev.Rating, ev.ReleaseYear, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit events, oldest first, so they can be
// replayed into a fresh profile in recorded order.
func (r *InteractionRepository) RecentHistory(limit int) ([]models.InteractionEvent, error) {
	rows, err := r.db.Query(`
		SELECT movie_id, action, genre_ids, rating, release_year, created_at
		FROM (
			SELECT * FROM interactions ORDER BY created_at DESC LIMIT $1
		) recent
		ORDER BY created_at ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	events := make([]models.InteractionEvent, 0, limit)
	for rows.Next() {
		var ev models.InteractionEvent
		var action string
		var genreIDs pq.Int64Array
		if err := rows.Scan(&ev.MovieID, &action, &genreIDs, &ev.Rating, &ev.ReleaseYear, &ev.Timestamp); err != nil {
			slog.Error("failed to scan interaction row", "error", err)
			continue
		}
		ev.Action = models.Action(action)
		ev.GenreIDs = make([]int, 0, len(genreIDs))
		for _, g := range genreIDs {
			ev.GenreIDs = append(ev.GenreIDs, int(g))
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Purge deletes every stored interaction, used by profile reset.
func (r *InteractionRepository) Purge() error {
	_, err := r.db.Exec(`DELETE FROM interactions`)
	if err != nil {
		return fmt.Errorf("purge interactions: %w", err)
	}
	return nil
}

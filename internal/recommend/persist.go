package recommend

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// load reads the persisted profile and merges it onto defaults. Any read
// or decode failure starts a fresh profile.
func (s *Scorer) load() {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("preference profile unreadable, starting fresh", "error", err)
		}
		return
	}

	var p profile
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("preference profile malformed, starting fresh", "error", err)
		return
	}
	if p.GenreWeights == nil {
		p.GenreWeights = make(map[int]float64)
	}
	if p.DecadeWeights == nil {
		p.DecadeWeights = make(map[int]float64)
	}
	if p.RatingHigh <= p.RatingLow {
		defaults := newProfile()
		p.RatingLow, p.RatingHigh = defaults.RatingLow, defaults.RatingHigh
	}

	s.p = p
	s.trimLocked()
	slog.Info("preference profile loaded", "history", len(s.p.History), "genres", len(s.p.GenreWeights))
}

// Flush persists the profile immediately.
func (s *Scorer) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
}

// persistLocked writes the whole profile as one document with
// write-temp-then-rename semantics. Callers hold the lock.
func (s *Scorer) persistLocked() {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		slog.Error("failed to create profile dir", "error", err)
		return
	}
	data, err := json.Marshal(s.p)
	if err != nil {
		slog.Error("failed to encode preference profile", "error", err)
		return
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("failed to write preference profile", "error", err)
		return
	}
	if err := os.Rename(tmp, s.file); err != nil {
		slog.Error("failed to replace preference profile", "error", err)
		return
	}
	s.writes = 0
}

// Reset clears the profile and removes its persisted state.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.p = newProfile()
	s.seen = make(map[int]bool)
	s.writes = 0
	if err := os.Remove(s.file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to remove preference profile", "error", err)
	}
}

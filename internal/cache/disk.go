package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"movie-discovery-service/internal/models"
)

const (
	moviesFile     = "movies.json"
	categoriesFile = "categories.json"
)

// load reads both cache files, dropping entries older than the retention
// window and pruning indices to ids that survived. Missing or unreadable
// files start an empty cache rather than failing.
func (c *MovieCache) load() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	var raw map[int]cachedMovie
	if err := readJSON(filepath.Join(c.dir, moviesFile), &raw); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("movie cache file unreadable, starting empty", "error", err)
		}
		return nil
	}

	cutoff := c.now().Add(-c.retention)
	for id, e := range raw {
		if e.CachedAt.Before(cutoff) {
			continue
		}
		c.entries[id] = e
	}

	var index map[string][]int
	if err := readJSON(filepath.Join(c.dir, categoriesFile), &index); err == nil {
		for category, ids := range index {
			kept := make([]int, 0, len(ids))
			for _, id := range ids {
				if _, ok := c.entries[id]; ok {
					kept = append(kept, id)
				}
			}
			if len(kept) > 0 {
				c.index[models.CacheCategory(category)] = kept
			}
		}
	}

	slog.Info("movie cache loaded", "entries", len(c.entries), "categories", len(c.index))
	return nil
}

// persistLocked writes both files with write-temp-then-rename semantics so
// a crash mid-write never leaves a reader with a torn cache. Callers hold
// the lock.
func (c *MovieCache) persistLocked() {
	if err := writeJSON(filepath.Join(c.dir, moviesFile), c.entries); err != nil {
		slog.Error("failed to persist movie cache", "error", err)
		return
	}
	if err := writeJSON(filepath.Join(c.dir, categoriesFile), c.index); err != nil {
		slog.Error("failed to persist category index", "error", err)
		return
	}
	c.dirty = false
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

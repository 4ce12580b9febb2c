// Package cache is the second-tier, disk-backed movie cache. It holds
// category-indexed catalog items with per-category expiration, a bounded
// memory tier, and atomic JSON persistence.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"movie-discovery-service/internal/models"
)

// DefaultTTL applies to uncategorized single-movie inserts.
const DefaultTTL = 1 * time.Hour

// cachedMovie wraps a movie with its cache lifecycle timestamps. Entries
// are never mutated in place; a refetch replaces them.
type cachedMovie struct {
	Movie     models.Movie `json:"movie"`
	CachedAt  time.Time    `json:"cached_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (e cachedMovie) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// MovieCache owns the entry map and category index exclusively; every
// public method takes the single lock for its whole critical section.
type MovieCache struct {
	mu      sync.Mutex
	entries map[int]cachedMovie
	index   map[models.CacheCategory][]int

	dir        string
	maxEntries int
	retention  time.Duration
	dirty      bool

	now func() time.Time
}

// New creates a MovieCache persisting under dir. Disk entries older than
// retention are dropped at load time regardless of per-item TTL.
func New(dir string, maxEntries int, retention time.Duration) (*MovieCache, error) {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	c := &MovieCache{
		entries:    make(map[int]cachedMovie),
		index:      make(map[models.CacheCategory][]int),
		dir:        dir,
		maxEntries: maxEntries,
		retention:  retention,
		now:        time.Now,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Cache inserts or replaces a single movie. An empty category leaves the
// index untouched and uses the default TTL.
func (c *MovieCache) Cache(m models.Movie, category models.CacheCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := DefaultTTL
	if category != "" {
		ttl = category.TTL()
	}
	now := c.now()
	c.entries[m.ID] = cachedMovie{Movie: m, CachedAt: now, ExpiresAt: now.Add(ttl)}

	if category != "" {
		c.appendToIndexLocked(category, m.ID)
	}
	c.evictLocked()
	c.dirty = true
}

// CacheMany inserts or replaces a full page of results for a category. The
// category index becomes exactly the ids just cached, not a union with the
// previous contents, and the batch is persisted as a save point.
func (c *MovieCache) CacheMany(items []models.Movie, category models.CacheCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expires := now.Add(category.TTL())
	ids := make([]int, 0, len(items))
	for _, m := range items {
		c.entries[m.ID] = cachedMovie{Movie: m, CachedAt: now, ExpiresAt: expires}
		ids = append(ids, m.ID)
	}
	c.index[category] = ids
	c.evictLocked()
	c.dirty = true
	c.persistLocked()
}

// Get returns the movie only if present and not expired. Expired entries
// are evicted lazily.
func (c *MovieCache) Get(id int) (models.Movie, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return models.Movie{}, false
	}
	if e.expired(c.now()) {
		delete(c.entries, id)
		c.dirty = true
		return models.Movie{}, false
	}
	return e.Movie, true
}

// GetItems returns the currently valid movies for a category in index
// order, silently skipping entries that expired or were evicted.
func (c *MovieCache) GetItems(category models.CacheCategory) []models.Movie {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ids := c.index[category]
	out := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		e, ok := c.entries[id]
		if !ok || e.expired(now) {
			continue
		}
		out = append(out, e.Movie)
	}
	return out
}

// HasCachedData reports whether the category has a usable cache: more than
// half of its indexed ids must still be valid. A stale majority reads as
// "no cache" so callers refetch rather than show mostly-stale data.
func (c *MovieCache) HasCachedData(category models.CacheCategory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.index[category]
	if len(ids) == 0 {
		return false
	}
	now := c.now()
	valid := 0
	for _, id := range ids {
		if e, ok := c.entries[id]; ok && !e.expired(now) {
			valid++
		}
	}
	return valid*2 > len(ids)
}

// GetOrFetch returns cached movies for category immediately when a usable
// cache exists, refreshing it in the background for next time; otherwise
// it fetches, caches and returns the fresh page.
func (c *MovieCache) GetOrFetch(ctx context.Context, category models.CacheCategory, fetch func(context.Context) ([]models.Movie, error)) ([]models.Movie, error) {
	if c.HasCachedData(category) {
		cached := c.GetItems(category)
		go func() {
			refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			fresh, err := fetch(refreshCtx)
			if err != nil {
				slog.Debug("background refresh failed", "category", category, "error", err)
				return
			}
			c.CacheMany(fresh, category)
		}()
		return cached, nil
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.CacheMany(fresh, category)
	return fresh, nil
}

// ClearExpired removes expired entries, re-derives the category indices to
// exclude them, and persists.
func (c *MovieCache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, id)
		}
	}
	for category, ids := range c.index {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := c.entries[id]; ok {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(c.index, category)
			continue
		}
		c.index[category] = kept
	}
	c.dirty = true
	c.persistLocked()
}

// Flush persists the cache if anything changed since the last save point.
func (c *MovieCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty {
		c.persistLocked()
	}
}

// Len returns the number of entries in the memory tier.
func (c *MovieCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper runs ClearExpired on the given interval until ctx is done.
func (c *MovieCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.Flush()
				return
			case <-ticker.C:
				c.ClearExpired()
			}
		}
	}()
}

// appendToIndexLocked adds id to the category index if not already present.
func (c *MovieCache) appendToIndexLocked(category models.CacheCategory, id int) {
	for _, existing := range c.index[category] {
		if existing == id {
			return
		}
	}
	c.index[category] = append(c.index[category], id)
}

// evictLocked bounds the memory tier, dropping oldest-by-CachedAt first.
func (c *MovieCache) evictLocked() {
	if len(c.entries) <= c.maxEntries {
		return
	}
	type aged struct {
		id       int
		cachedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, aged{id: id, cachedAt: e.CachedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].cachedAt.Before(all[j].cachedAt)
	})
	for _, a := range all[:len(c.entries)-c.maxEntries] {
		delete(c.entries, a.id)
	}
}

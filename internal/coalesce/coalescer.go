// Package coalesce deduplicates concurrent identical requests and serves
// short-TTL cached results without hitting the network.
package coalesce

import (
	"context"
	"sync"
	"time"
)

// Producer computes the value for a key when neither the cache nor an
// in-flight call can serve it.
type Producer[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// call is one in-flight produce-cycle shared by every caller of its key.
type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Coalescer merges concurrent calls for the same key into one producer
// invocation and caches successful results with a TTL. All internal state
// is guarded by a single mutex; the maps are never exposed.
type Coalescer[V any] struct {
	mu         sync.Mutex
	cache      map[string]entry[V]
	pending    map[string]*call[V]
	defaultTTL time.Duration

	now func() time.Time
}

// New creates a Coalescer with the given default TTL for cached results.
func New[V any](defaultTTL time.Duration) *Coalescer[V] {
	return &Coalescer[V]{
		cache:      make(map[string]entry[V]),
		pending:    make(map[string]*call[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Do returns the cached value for key if still fresh; otherwise it joins an
// in-flight call for the key or starts one, caching the result with the
// default TTL.
func (c *Coalescer[V]) Do(ctx context.Context, key string, producer Producer[V]) (V, error) {
	return c.DoTTL(ctx, key, c.defaultTTL, producer)
}

// DoTTL is Do with an explicit TTL for this produce-cycle.
//
// At most one producer runs per key per cache-validity window. The producer
// runs detached from any single caller's context: a waiter that cancels
// stops waiting and gets its own context error, while the shared work runs
// to completion for the others and still lands in the cache.
func (c *Coalescer[V]) DoTTL(ctx context.Context, key string, ttl time.Duration, producer Producer[V]) (V, error) {
	var zero V

	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.value, nil
		}
		delete(c.cache, key)
	}
	if inflight, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, inflight)
	}

	cl := &call[V]{done: make(chan struct{})}
	c.pending[key] = cl
	c.mu.Unlock()

	go func() {
		val, err := producer(context.WithoutCancel(ctx))

		c.mu.Lock()
		// Success or failure, the pending slot is cleared so a failed
		// cycle does not poison future attempts for this key. Only clear
		// our own slot: Invalidate may have dropped it and a newer call
		// may occupy the key by now.
		if c.pending[key] == cl {
			delete(c.pending, key)
		}
		if err == nil {
			c.cache[key] = entry[V]{value: val, expiresAt: c.now().Add(ttl)}
		}
		c.mu.Unlock()

		cl.val, cl.err = val, err
		close(cl.done)
	}()

	v, err := c.wait(ctx, cl)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func (c *Coalescer[V]) wait(ctx context.Context, cl *call[V]) (V, error) {
	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-cl.done:
		if cl.err != nil {
			return zero, cl.err
		}
		return cl.val, nil
	}
}

// Peek returns the cached value for key without triggering a produce-cycle.
func (c *Coalescer[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.cache[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Invalidate drops the cached value and any pending-call handle for key.
// Callers already waiting on an in-flight call still receive its result.
func (c *Coalescer[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
	delete(c.pending, key)
}

// InvalidateAll drops every cached value and pending-call handle.
func (c *Coalescer[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]entry[V])
	c.pending = make(map[string]*call[V])
}

// Sweep drops only expired cache entries and returns how many were removed.
func (c *Coalescer[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.cache {
		if !now.Before(e.expiresAt) {
			delete(c.cache, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, fresh or not.
func (c *Coalescer[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Package search debounces rapid search-as-you-type calls so only the
// newest query in a burst reaches the network.
package search

import (
	"context"
	"sync"
	"time"

	"movie-discovery-service/internal/models"
)

// DefaultInterval is the pause after the most recent call before a request
// is actually dispatched.
const DefaultInterval = 300 * time.Millisecond

// SearchFunc performs the underlying search request.
type SearchFunc func(ctx context.Context, query string, page int) (*models.PageResult, error)

// Debouncer keeps at most one pending search. A newer search cancels the
// previous pending one outright; the newest query wins. The most recent
// first-page result is cached by exact query string so an immediately
// repeated query returns with no delay and no network call.
type Debouncer struct {
	mu         sync.Mutex
	interval   time.Duration
	search     SearchFunc
	cancelPrev context.CancelFunc
	gen        uint64

	lastQuery  string
	lastResult *models.PageResult
}

// New creates a Debouncer over fn. interval <= 0 uses DefaultInterval.
func New(interval time.Duration, fn SearchFunc) *Debouncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{interval: interval, search: fn}
}

// Search waits out the debounce interval, then issues the query. If a newer
// Search arrives during the wait, this call is cancelled and makes no
// request. Cancellation is re-checked after the wait and after the request
// so a cancelled search never updates the cached query state.
func (d *Debouncer) Search(ctx context.Context, query string, page int) (*models.PageResult, error) {
	d.mu.Lock()
	if page == 1 && query == d.lastQuery && d.lastResult != nil {
		res := d.lastResult
		d.mu.Unlock()
		return res, nil
	}

	if d.cancelPrev != nil {
		d.cancelPrev()
	}
	callCtx, cancel := context.WithCancel(ctx)
	d.cancelPrev = cancel
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	timer := time.NewTimer(d.interval)
	select {
	case <-callCtx.Done():
		timer.Stop()
		return nil, callCtx.Err()
	case <-timer.C:
	}
	if err := callCtx.Err(); err != nil {
		return nil, err
	}

	res, err := d.search(callCtx, query, page)
	if err != nil {
		return nil, err
	}
	if err := callCtx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.gen == gen {
		if page == 1 {
			d.lastQuery = query
			d.lastResult = res
		}
		d.cancelPrev = nil
	}
	d.mu.Unlock()
	return res, nil
}

// Reset drops the cached first-page result and cancels any pending search.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelPrev != nil {
		d.cancelPrev()
		d.cancelPrev = nil
	}
	d.lastQuery = ""
	d.lastResult = nil
}

// Package batch fans out per-item fetches in fixed-size chunks with
// inter-chunk pacing to stay under the remote API's rate limits.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize bounds how many fetches run concurrently.
	DefaultChunkSize = 4
	// DefaultChunkPause is inserted between chunks, not after the last.
	DefaultChunkPause = 100 * time.Millisecond
)

// FetchFunc fetches the result for a single item.
type FetchFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Manager runs batches of per-item fetches.
type Manager struct {
	chunkSize  int
	chunkPause time.Duration
}

// NewManager creates a Manager. Non-positive arguments use the defaults.
func NewManager(chunkSize int, chunkPause time.Duration) *Manager {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkPause <= 0 {
		chunkPause = DefaultChunkPause
	}
	return &Manager{chunkSize: chunkSize, chunkPause: chunkPause}
}

// FetchAll fetches a result for every item. Within a chunk all fetches run
// concurrently; a chunk fully completes before the next starts.
//
// Failure policy is fail-fast: the first error within a chunk cancels the
// remaining fetches of that chunk and fails the whole batch with no
// partial results. Results are returned in input order.
func FetchAll[T, R any](ctx context.Context, m *Manager, items []T, fetch FetchFunc[T, R]) ([]R, error) {
	results := make([]R, len(items))

	for start := 0; start < len(items); start += m.chunkSize {
		end := start + m.chunkSize
		if end > len(items) {
			end = len(items)
		}

		g, chunkCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				r, err := fetch(chunkCtx, items[i])
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(items) {
			timer := time.NewTimer(m.chunkPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return results, nil
}

package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-discovery-service/internal/models"
)

func countingSearch(calls *atomic.Int32, queries *[]string, mu *sync.Mutex) SearchFunc {
	return func(ctx context.Context, query string, page int) (*models.PageResult, error) {
		calls.Add(1)
		mu.Lock()
		*queries = append(*queries, query)
		mu.Unlock()
		return &models.PageResult{Page: page, TotalResults: 1}, nil
	}
}

func TestBurstCoalescesToNewestQuery(t *testing.T) {
	var calls atomic.Int32
	var queries []string
	var mu sync.Mutex
	d := New(80*time.Millisecond, countingSearch(&calls, &queries, &mu))

	// "a" and "ab" are superseded before their debounce window elapses.
	var wg sync.WaitGroup
	for _, q := range []string{"a", "ab"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Search(context.Background(), q, 1)
			assert.ErrorIs(t, err, context.Canceled)
		}()
		time.Sleep(20 * time.Millisecond)
	}

	res, err := d.Search(context.Background(), "abc", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one network call for the burst")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"abc"}, queries)
}

func TestRepeatedFirstPageQueryServedFromCache(t *testing.T) {
	var calls atomic.Int32
	var queries []string
	var mu sync.Mutex
	d := New(20*time.Millisecond, countingSearch(&calls, &queries, &mu))

	first, err := d.Search(context.Background(), "dune", 1)
	require.NoError(t, err)

	start := time.Now()
	second, err := d.Search(context.Background(), "dune", 1)
	require.NoError(t, err)

	assert.Same(t, first, second, "identical repeat returns the cached result")
	assert.Less(t, time.Since(start), 20*time.Millisecond, "no debounce delay on cache hit")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSecondPageIsNotCached(t *testing.T) {
	var calls atomic.Int32
	var queries []string
	var mu sync.Mutex
	d := New(10*time.Millisecond, countingSearch(&calls, &queries, &mu))

	_, err := d.Search(context.Background(), "dune", 2)
	require.NoError(t, err)
	_, err = d.Search(context.Background(), "dune", 2)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCancelledDuringDelayMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	var queries []string
	var mu sync.Mutex
	d := New(100*time.Millisecond, countingSearch(&calls, &queries, &mu))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Search(ctx, "dune", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestResetDropsCachedQuery(t *testing.T) {
	var calls atomic.Int32
	var queries []string
	var mu sync.Mutex
	d := New(10*time.Millisecond, countingSearch(&calls, &queries, &mu))

	_, err := d.Search(context.Background(), "dune", 1)
	require.NoError(t, err)
	d.Reset()

	_, err = d.Search(context.Background(), "dune", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllReturnsAllResultsInInputOrder(t *testing.T) {
	m := NewManager(3, time.Millisecond)
	items := []int{1, 2, 3, 4, 5, 6, 7}

	results, err := FetchAll(context.Background(), m, items, func(ctx context.Context, id int) (int, error) {
		return id * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70}, results)
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	m := NewManager(3, time.Millisecond)
	items := make([]int, 12)

	var inFlight, peak atomic.Int32
	_, err := FetchAll(context.Background(), m, items, func(ctx context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3), "no more than one chunk in flight")
}

func TestFetchAllFailFast(t *testing.T) {
	m := NewManager(2, time.Millisecond)
	items := []int{1, 2, 3, 4, 5, 6}
	boom := errors.New("boom")

	var calls atomic.Int32
	results, err := FetchAll(context.Background(), m, items, func(ctx context.Context, id int) (int, error) {
		calls.Add(1)
		if id == 2 {
			return 0, boom
		}
		return id, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results, "no partial results on failure")
	assert.LessOrEqual(t, calls.Load(), int32(2), "later chunks never start")
}

func TestFetchAllPacesBetweenChunks(t *testing.T) {
	pause := 50 * time.Millisecond
	m := NewManager(2, pause)
	items := []int{1, 2, 3, 4}

	start := time.Now()
	_, err := FetchAll(context.Background(), m, items, func(ctx context.Context, id int) (int, error) {
		return id, nil
	})
	require.NoError(t, err)

	// Two chunks means exactly one inter-chunk pause, none after the last.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, pause)
	assert.Less(t, elapsed, 2*pause)
}

func TestFetchAllRespectsCancellationDuringPause(t *testing.T) {
	m := NewManager(1, time.Second)
	items := []int{1, 2}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := FetchAll(ctx, m, items, func(ctx context.Context, id int) (int, error) {
		calls.Add(1)
		return id, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load(), "second chunk never starts after cancellation")
}

func TestFetchAllEmptyInput(t *testing.T) {
	m := NewManager(0, 0)

	results, err := FetchAll(context.Background(), m, nil, func(ctx context.Context, id int) (int, error) {
		t.Fatal("fetch must not run")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCoalescesConcurrentCallers(t *testing.T) {
	c := New[int](time.Minute)

	var invocations atomic.Int32
	release := make(chan struct{})
	producer := func(ctx context.Context) (int, error) {
		invocations.Add(1)
		<-release
		return 42, nil
	}

	const callers = 20
	results := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Do(context.Background(), "trending_page_1", producer)
			require.NoError(t, err)
			results[i] = v
		}()
	}

	// Let every caller reach the coalescer before the producer finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), invocations.Load(), "producer must run exactly once")
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestDoTTLServesCachedUntilExpiry(t *testing.T) {
	c := New[string](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	var invocations int
	producer := func(ctx context.Context) (string, error) {
		invocations++
		return "v", nil
	}

	_, err := c.DoTTL(context.Background(), "k", 10*time.Second, producer)
	require.NoError(t, err)

	// Inside the TTL window: served from cache.
	now = now.Add(9 * time.Second)
	_, err = c.DoTTL(context.Background(), "k", 10*time.Second, producer)
	require.NoError(t, err)
	assert.Equal(t, 1, invocations)

	// At the TTL boundary: a fresh produce-cycle runs.
	now = now.Add(1 * time.Second)
	_, err = c.DoTTL(context.Background(), "k", 10*time.Second, producer)
	require.NoError(t, err)
	assert.Equal(t, 2, invocations)
}

func TestDoErrorIsSharedAndNotCached(t *testing.T) {
	c := New[int](time.Minute)

	boom := errors.New("boom")
	var invocations atomic.Int32
	failing := func(ctx context.Context) (int, error) {
		invocations.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 0, boom
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), "k", failing)
			assert.ErrorIs(t, err, boom)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), invocations.Load())

	// The failed cycle is not cached and does not poison the key.
	v, err := c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWaiterCancellationDoesNotCancelSharedWork(t *testing.T) {
	c := New[int](time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	producer := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 99, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Do(leaderCtx, "k", producer)
		leaderErr <- err
	}()
	<-started

	followerVal := make(chan int, 1)
	go func() {
		v, err := c.Do(context.Background(), "k", producer)
		require.NoError(t, err)
		followerVal <- v
	}()

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	assert.Equal(t, 99, <-followerVal)

	// The shared result still landed in the cache.
	require.Eventually(t, func() bool {
		_, ok := c.Peek("k")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	c := New[int](time.Minute)

	var invocations int
	producer := func(ctx context.Context) (int, error) {
		invocations++
		return invocations, nil
	}

	v, err := c.Do(context.Background(), "k", producer)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	c.Invalidate("k")

	v, err = c.Do(context.Background(), "k", producer)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	c := New[int](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	produce := func(v int) Producer[int] {
		return func(ctx context.Context) (int, error) { return v, nil }
	}
	_, err := c.DoTTL(context.Background(), "short", time.Second, produce(1))
	require.NoError(t, err)
	_, err = c.DoTTL(context.Background(), "long", time.Hour, produce(2))
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Peek("long")
	assert.True(t, ok)
}

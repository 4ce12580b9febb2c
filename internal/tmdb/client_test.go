package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestRetriesTransientFailuresThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"page":1,"results":[{"id":550,"title":"Fight Club"}],"total_pages":1,"total_results":1}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(3)), WithoutBreaker())

	res, err := c.Popular(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 550, res.Results[0].ID)
	assert.Equal(t, int32(4), hits.Load(), "3 retries after the initial attempt")
}

func TestRetryBudgetExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(2)), WithoutBreaker())

	_, err := c.Popular(context.Background(), 1)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindServer, apiErr.Kind)
	assert.Equal(t, int32(3), hits.Load(), "initial attempt plus 2 retries")
}

func TestRateLimitedIsRetryable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"page":1,"results":[],"total_pages":0,"total_results":0}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(3)), WithoutBreaker())

	_, err := c.Trending(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(3)), WithoutBreaker())

	_, err := c.MovieDetail(context.Background(), 999999)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindInvalidRequest, apiErr.Kind)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), hits.Load(), "non-retryable errors get zero retries")
}

func TestUnauthorizedSurfacesImmediately(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", srv.URL, WithRetryPolicy(fastRetry(3)), WithoutBreaker())

	_, err := c.Popular(context.Background(), 1)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindUnauthorized, apiErr.Kind)
	assert.True(t, apiErr.RequiresUserAction())
	assert.Equal(t, int32(1), hits.Load())
}

func TestMissingAPIKey(t *testing.T) {
	c := NewClient("", "http://unused.invalid")

	_, err := c.Popular(context.Background(), 1)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindUnauthorized, apiErr.Kind)
}

func TestDecodeFailuresAreNeverRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(3)), WithoutBreaker())

	_, err := c.Popular(context.Background(), 1)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindDecode, apiErr.Kind)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCancellationDuringBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   time.Second,
	}), WithoutBreaker())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.Popular(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), hits.Load(), "no attempt may run after cancellation")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, WithRetryPolicy(fastRetry(3)))

	// Two exhausted calls push consecutive failures past the trip point.
	_, err := c.Popular(context.Background(), 1)
	require.Error(t, err)
	_, err = c.Popular(context.Background(), 1)
	require.Error(t, err)

	before := hits.Load()
	_, err = c.Popular(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, before, hits.Load(), "open breaker fails fast without hitting the server")
}

func TestRetryDelayBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, MaxRetries: 10}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 5*time.Second)
	}
	// First attempt: base delay plus at most half of it in jitter.
	d := p.delay(0)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 1500*time.Millisecond)
}

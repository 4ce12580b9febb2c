package tmdb

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy controls the exponential backoff applied to retryable
// failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches TMDB's published rate limiting guidance.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   30 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// delay computes the backoff before retry number attempt (0-based):
// min(MaxDelay, BaseDelay*2^attempt + jitter), jitter uniform in
// [0, exponential/2).
func (p RetryPolicy) delay(attempt int) time.Duration {
	exp := p.BaseDelay
	for i := 0; i < attempt && exp < p.MaxDelay; i++ {
		exp *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	if d := exp + jitter; d < p.MaxDelay {
		return d
	}
	return p.MaxDelay
}

// doWithRetry runs op, retrying retryable failures per policy. Cancellation
// is observed before and during every backoff sleep; no attempt runs after
// the context is done.
func doWithRetry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	policy = policy.withDefaults()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsRetryable(err) || attempt >= policy.MaxRetries {
			return zero, err
		}

		wait := policy.delay(attempt)
		slog.Debug("retrying TMDB request", "attempt", attempt+1, "delay", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

package external

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	apperrors "cinepay/internal/errors"
)

// RetryPolicy bounds caller-driven retries of outbound calls
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns a policy with the given attempt cap
func DefaultRetryPolicy(attempts int) RetryPolicy {
	if attempts <= 0 {
		attempts = 1
	}
	return RetryPolicy{
		Attempts:  attempts,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  3 * time.Second,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the attempt
// cap is reached or ctx is done. Only network failures and timeouts are retried.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) || attempt == p.Attempts {
			return lastErr
		}

		delay := p.backoff(attempt)
		slog.Warn("Outbound call failed, retrying",
			"attempt", attempt, "max_attempts", p.Attempts, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoff: base * 2^(attempt-1) with ±25% jitter, capped at MaxDelay
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	backoff := p.BaseDelay * time.Duration(1<<(attempt-1))
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter*2)) - time.Duration(quarter)
		backoff += jitter
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

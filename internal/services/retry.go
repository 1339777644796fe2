package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
	// jitterFraction spreads retries by ±10% to avoid synchronized retry
	// storms across workers sharing the limiter.
	jitterFraction = 0.10
)

// BackoffPolicy controls retry pacing: delay doubles per attempt up to
// MaxDelay, with ±10% jitter applied on top.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the standard policy for external calls.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		MaxAttempts: defaultMaxAttempts,
	}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	return p
}

// Delay computes the capped, jittered backoff for a 1-based attempt number.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	jitter := 1 + jitterFraction*(2*rand.Float64()-1)
	jittered := time.Duration(float64(delay) * jitter)
	if jittered <= 0 {
		jittered = delay
	}
	return jittered
}

// Caller bundles the pacing shared by every call against one remote
// service: a token-bucket limiter plus a backoff policy. The zero value
// retries with defaults and no rate limiting.
type Caller struct {
	Limiter *Limiter
	Backoff BackoffPolicy
	// Sleep overrides how retry waits are performed; tests inject a fake.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Caller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call runs fn under the limiter, retrying retryable failures with capped
// exponential backoff plus jitter. Non-retryable failures return
// immediately and do not pause the limiter. Exhausting the attempt budget
// is a terminal failure for the call.
func Call[T any](ctx context.Context, c Caller, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	policy := c.Backoff.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, policy.Delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: failed after %d attempts: %w", op, policy.MaxAttempts, lastErr)
}

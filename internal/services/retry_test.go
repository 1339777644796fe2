package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxAttempts: 10}

	// Jitter is ±10%, so verify each delay lands inside its band.
	wantBase := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
		8 * time.Second,
	}
	for attempt, base := range wantBase {
		got := policy.Delay(attempt + 1)
		low := time.Duration(float64(base) * 0.9)
		high := time.Duration(float64(base) * 1.1)
		if got < low || got > high {
			t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt+1, got, low, high)
		}
	}
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var sleeps []time.Duration
	caller := Caller{
		Backoff: BackoffPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, MaxAttempts: 4},
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}

	attempts := 0
	got, err := Call(context.Background(), caller, "flaky", func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", Wrap(ErrTransient, "test", "op", "try again", nil)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Fatalf("got %q after %d attempts", got, attempts)
	}
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 waits", sleeps)
	}
}

func TestCallStopsOnNonRetryable(t *testing.T) {
	caller := Caller{
		Backoff: BackoffPolicy{MaxAttempts: 5},
		Sleep: func(context.Context, time.Duration) error {
			t.Fatal("must not sleep for a non-retryable failure")
			return nil
		},
	}
	attempts := 0
	_, err := Call(context.Background(), caller, "hard", func(context.Context) (int, error) {
		attempts++
		return 0, Wrap(ErrNotFound, "test", "op", "missing", nil)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestCallExhaustsAttempts(t *testing.T) {
	caller := Caller{
		Backoff: BackoffPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3},
		Sleep:   func(context.Context, time.Duration) error { return nil },
	}
	attempts := 0
	_, err := Call(context.Background(), caller, "always failing", func(context.Context) (int, error) {
		attempts++
		return 0, Wrap(ErrTransient, "test", "op", "nope", nil)
	})
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want transient chain", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestCallHonorsContextDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	caller := Caller{
		Backoff: BackoffPolicy{BaseDelay: time.Millisecond, MaxAttempts: 5},
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := Call(ctx, caller, "canceled", func(context.Context) (int, error) {
		return 0, Wrap(ErrTransient, "test", "op", "busy", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLimiterAllowsBurstThenPaces(t *testing.T) {
	limiter, err := NewLimiter(10, 2)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }
	limiter.last = current
	limiter.tokens = limiter.burst

	// Burst drains without waiting.
	if wait := limiter.reserve(); wait != 0 {
		t.Fatalf("first token wait = %v", wait)
	}
	if wait := limiter.reserve(); wait != 0 {
		t.Fatalf("second token wait = %v", wait)
	}

	// Bucket empty: the third caller waits about one refill interval.
	wait := limiter.reserve()
	if wait <= 0 || wait > 150*time.Millisecond {
		t.Fatalf("third token wait = %v, want ~100ms", wait)
	}

	// After time passes, tokens are available again.
	current = current.Add(time.Second)
	if wait := limiter.reserve(); wait != 0 {
		t.Fatalf("wait after refill = %v", wait)
	}
}

func TestNewLimiterRejectsBadRate(t *testing.T) {
	if _, err := NewLimiter(0, 1); err == nil {
		t.Fatal("zero rate accepted")
	}
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	limiter, err := NewLimiter(0.001, 1)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

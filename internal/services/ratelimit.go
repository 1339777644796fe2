package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter is a token bucket with a fixed refill rate and minimal burst
// capacity, shared by all workers calling the same remote service.
type Limiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewLimiter builds a limiter refilling at rate tokens per second with the
// given burst capacity. The bucket starts full.
func NewLimiter(rate float64, burst int) (*Limiter, error) {
	if rate <= 0 {
		return nil, errors.New("limiter rate must be positive")
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
	l.last = l.now()
	return l, nil
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve refills, then either consumes a token or returns how long to wait
// before trying again.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		l.last = now
	}
	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	deficit := 1 - l.tokens
	return time.Duration(deficit / l.rate * float64(time.Second))
}

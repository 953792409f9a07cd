// Package retry runs an operation with bounded attempts and exponential
// backoff between them.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures Do.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64 // defaults to 2
	Jitter       float64 // fraction of the delay, 0..1

	// ShouldRetry decides whether err is worth another attempt. Nil retries
	// every error.
	ShouldRetry func(err error) bool

	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the backoff before the attempt following attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		j := d * p.Jitter
		d = d - j + rand.Float64()*2*j
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do calls op until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx ends. The returned error wraps the last failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", lastErr)
		}
	}
	return zero, fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

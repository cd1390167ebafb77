package service

import (
	"context"
	"errors"
	"time"

	"github.com/flexa/stylebot/internal/ai"
)

// RetryPolicy bounds how many times an operation is attempted and how long to
// wait between attempts. Only transient failures are retried; a definitive
// failure stops the loop immediately.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// Sleep is swappable in tests. Nil means time.Sleep honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: delay}
}

// Do runs fn up to MaxAttempts times. It returns nil on the first success,
// the error unchanged when it is not transient, and the last transient error
// once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ai.ErrTransient) {
			return lastErr
		}
		if attempt < p.MaxAttempts {
			if err := sleep(ctx, p.Delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

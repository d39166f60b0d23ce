// Package retry runs an operation under an explicit attempt policy.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy describes how an operation is retried. The zero value is not usable;
// start from DefaultPolicy.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Retryable reports whether err may succeed on another attempt. A nil
	// predicate treats every error as retryable.
	Retryable func(err error) bool

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

// DefaultPolicy is five attempts with a fixed two second pause. Logger is
// left nil so callers can supply their own.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
		Multiplier:  1,
		Sleep:       SleepContext,
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. The error of the last attempt is returned unchanged.
func Do(ctx context.Context, p Policy, op func(attempt int) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				p.Logger.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		p.Logger.Warn("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
		)
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}

		next := time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && next > p.MaxDelay {
			next = p.MaxDelay
		}
		delay = next
	}
	return lastErr
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, p Policy, op func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(attempt int) error {
		var err error
		result, err = op(attempt)
		return err
	})
	return result, err
}

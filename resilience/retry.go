package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// Backoff computes the wait before each retry.
	Backoff Backoff
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Clock is used for the waits between attempts.
	Clock clock.Clock
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: true},
		RetryIf:     DefaultRetryIf,
	}
}

// DefaultRetryIf retries everything except cancellation and permanent errors.
func DefaultRetryIf(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsPermanent(err)
}

// Retry executes fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The last error is returned on exhaustion.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = 100 * time.Millisecond
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.Backoff.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-cfg.Clock.After(wait):
		}
	}

	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

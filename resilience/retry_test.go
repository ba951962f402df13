package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Backoff:     Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	callCount := 0

	result, err := Retry(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %s", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	callCount := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := RetryFunc(context.Background(), cfg, func(context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
	if len(retried) != 2 {
		t.Errorf("expected 2 retry callbacks, got %v", retried)
	}
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	callCount := 0
	last := errors.New("still failing")

	err := RetryFunc(context.Background(), fastRetry(2), func(context.Context) error {
		callCount++
		return last
	})

	if !errors.Is(err, last) {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	callCount := 0

	err := RetryFunc(context.Background(), fastRetry(5), func(context.Context) error {
		callCount++
		return Permanent(errors.New("invalid"))
	})

	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryFunc(ctx, fastRetry(3), func(context.Context) error {
		t.Error("function should not be called with a cancelled context")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestErrors_Classification(t *testing.T) {
	base := errors.New("x")

	if !IsPermanent(Permanent(base)) {
		t.Error("expected Permanent to be permanent")
	}
	if IsPermanent(Retryable(base)) || IsPermanent(base) {
		t.Error("expected retryable and unclassified errors not to be permanent")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("expected Permanent to unwrap to its cause")
	}
	if Permanent(nil) != nil || Retryable(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}

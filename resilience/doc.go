// Package resilience provides the fault-tolerance primitives shared by the
// delivery engine and the two-phase coordinator.
//
// This package includes:
//   - CircuitBreaker: per-dependency failure gate with a rolling failure window
//   - Registry: named breaker singletons and their status snapshots
//   - Backoff: capped exponential delays with optional jitter
//   - Retry: bounded retries driven by Backoff
//   - Bulkhead: per-dependency concurrency caps
//   - PermanentError / RetryableError: failure classification shared by callers
//
// Breakers are looked up by dependency name and shared by every caller:
//
//	breakers := resilience.NewRegistry(map[string]resilience.CircuitBreakerConfig{
//	    "stripe": {FailureThreshold: 3, Window: time.Minute, Recovery: 30 * time.Second},
//	})
//	err := breakers.Execute("stripe", func() error {
//	    return client.CreateCheckoutSession(ctx, req)
//	})
package resilience

// Package observability installs OTLP trace and metric export and provides
// the transition hooks for circuit breakers and the adaptive rate limiter.
//
//	shutdown, err := observability.Init(ctx, cfg.Observability, observability.Service{Name: "resilienced"})
//	defer shutdown(ctx)
//
//	m, err := observability.NewMetrics(nil, log)
//	breakers := resilience.NewRegistry(cfgs, resilience.WithStateChangeHook(m.BreakerTransition))
//	limiter := ratelimit.NewAdaptiveLimiter(store, rlCfg, ratelimit.WithModeChangeHook(m.LimiterModeChange))
package observability

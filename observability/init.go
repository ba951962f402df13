package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kbukum/resilience-core/logger"
)

// Service identifies the process in exported telemetry.
type Service struct {
	Name        string
	Version     string
	Environment string
}

// Init installs the global tracer and meter providers described by cfg and
// returns a function that flushes and shuts both down. With cfg.Enabled
// false it installs nothing and the returned shutdown is a no-op.
func Init(ctx context.Context, cfg Config, svc Service) (func(context.Context) error, error) {
	cfg.ApplyDefaults()
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(svc)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry export started", logger.Fields(
		"service", svc.Name,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval,
		"sample_rate", cfg.SampleRate,
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

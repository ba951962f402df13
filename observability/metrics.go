package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/ratelimit"
	"github.com/kbukum/resilience-core/resilience"
)

const instrumentationName = "github.com/kbukum/resilience-core/observability"

// Metrics holds the instruments for breaker and limiter transitions.
type Metrics struct {
	breakerTransitions metric.Int64Counter
	limiterModeChanges metric.Int64Counter
	log                *logger.Logger
}

// NewMetrics creates the instruments on meter. A nil meter uses the global
// provider; a nil log uses the global logger.
func NewMetrics(meter metric.Meter, log *logger.Logger) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	breakerTransitions, err := meter.Int64Counter("resilience.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.breaker.transitions counter: %w", err)
	}

	limiterModeChanges, err := meter.Int64Counter("resilience.ratelimit.mode_changes",
		metric.WithDescription("Rate limiter switches between the shared and in-memory store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.ratelimit.mode_changes counter: %w", err)
	}

	return &Metrics{
		breakerTransitions: breakerTransitions,
		limiterModeChanges: limiterModeChanges,
		log:                log.WithComponent("resilience"),
	}, nil
}

// BreakerTransition records a breaker state change. Opening is logged as a
// warning, everything else at info. It matches the signature of
// resilience.WithStateChangeHook.
func (m *Metrics) BreakerTransition(name string, from, to resilience.State) {
	m.breakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("dependency", name),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))

	fields := logger.Fields(
		logger.FieldDependency, name,
		"from", from.String(),
		logger.FieldState, to.String(),
	)
	if to == resilience.StateOpen {
		m.log.Warn("Circuit breaker opened", fields)
		return
	}
	m.log.Info("Circuit breaker state changed", fields)
}

// LimiterModeChange records a limiter mode switch. It matches the signature
// of ratelimit.WithModeChangeHook.
func (m *Metrics) LimiterModeChange(from, to ratelimit.Mode) {
	m.limiterModeChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

package delivery

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kbukum/resilience-core/delivery"

// metrics holds the engine's OpenTelemetry instruments.
type metrics struct {
	attempts  metric.Int64Counter
	delivered metric.Int64Counter
	retried   metric.Int64Counter
	dead      metric.Int64Counter
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	attempts, err := meter.Int64Counter("outbox.delivery.attempts",
		metric.WithDescription("Transport calls attempted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.delivery.attempts counter: %w", err)
	}

	delivered, err := meter.Int64Counter("outbox.delivery.delivered",
		metric.WithDescription("Items delivered"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.delivery.delivered counter: %w", err)
	}

	retried, err := meter.Int64Counter("outbox.delivery.retried",
		metric.WithDescription("Failed attempts rescheduled with backoff"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.delivery.retried counter: %w", err)
	}

	dead, err := meter.Int64Counter("outbox.delivery.dead",
		metric.WithDescription("Items moved to the dead-letter state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.delivery.dead counter: %w", err)
	}

	duration, err := meter.Float64Histogram("outbox.delivery.duration",
		metric.WithDescription("Duration of transport calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.delivery.duration histogram: %w", err)
	}

	batchSize, err := meter.Int64Histogram("outbox.claim.batch_size",
		metric.WithDescription("Items claimed per tick"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outbox.claim.batch_size histogram: %w", err)
	}

	return &metrics{
		attempts:  attempts,
		delivered: delivered,
		retried:   retried,
		dead:      dead,
		duration:  duration,
		batchSize: batchSize,
	}, nil
}

func (m *metrics) recordBatch(ctx context.Context, n int) {
	m.batchSize.Record(ctx, int64(n))
}

func (m *metrics) recordAttempt(ctx context.Context, route Route, result string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(route.Kind)),
		attribute.String("dependency", route.Dependency),
		attribute.String("result", result),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

func (m *metrics) recordOutcome(ctx context.Context, kind string, o outcome) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	switch o {
	case outcomeDelivered:
		m.delivered.Add(ctx, 1, attrs)
	case outcomeRetried:
		m.retried.Add(ctx, 1, attrs)
	case outcomeDead:
		m.dead.Add(ctx, 1, attrs)
	}
}

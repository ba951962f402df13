package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Bucket boundaries for the delivery histograms. The default SDK buckets
// stop at 10s and start at 0, which hides both fast webhook calls and the
// call timeout tail.
var (
	deliveryDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}
	claimBatchBuckets       = []float64{0, 1, 5, 10, 25, 50, 100, 250, 500}
)

// metricViews shapes the instruments the delivery engine records.
func metricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "outbox.delivery.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: deliveryDurationBuckets}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "outbox.claim.batch_size"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: claimBatchBuckets, NoMinMax: true}},
		),
	}
}

// newMeterProvider pushes to the collector every cfg.Interval.
func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.interval()))),
		sdkmetric.WithResource(res),
	}
	for _, v := range metricViews() {
		providerOpts = append(providerOpts, sdkmetric.WithView(v))
	}
	return sdkmetric.NewMeterProvider(providerOpts...), nil
}

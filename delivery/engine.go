package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

// Store is the subset of the outbox store the engine drives.
type Store interface {
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*outbox.Item, error)
	MarkDelivered(ctx context.Context, item *outbox.Item) error
	MarkFailed(ctx context.Context, item *outbox.Item, cause error, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, item *outbox.Item, cause error) error
	Release(ctx context.Context, item *outbox.Item) error
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
}

// TickResult counts what one tick did.
type TickResult struct {
	Claimed   int
	Delivered int
	Retried   int
	Dead      int
	Released  int
	Stale     int64
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeDelivered
	outcomeRetried
	outcomeDead
	outcomeReleased
)

func (r *TickResult) add(o outcome) {
	switch o {
	case outcomeDelivered:
		r.Delivered++
	case outcomeRetried:
		r.Retried++
	case outcomeDead:
		r.Dead++
	case outcomeReleased:
		r.Released++
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source for scheduling and the poll loop.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithLogger sets the engine logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log.WithComponent("delivery") }
}

// WithMeter sets the meter for delivery metrics. Defaults to the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) { e.meter = meter }
}

// WithTracer sets the tracer for delivery spans. Defaults to the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// Engine polls the outbox and delivers due items.
type Engine struct {
	store     Store
	router    *Router
	breakers  *resilience.Registry
	bulkheads *resilience.Bulkheads
	cfg       Config
	s         settings
	clock     clock.Clock
	log       *logger.Logger
	meter     metric.Meter
	tracer    trace.Tracer
	metrics   *metrics

	mu      sync.Mutex
	lastErr error
}

// NewEngine creates an engine. The breakers registry is shared with any other
// caller of the same dependencies.
func NewEngine(store Store, router *Router, breakers *resilience.Registry, cfg Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:     store,
		router:    router,
		breakers:  breakers,
		bulkheads: resilience.NewBulkheads(cfg.DependencyConcurrency),
		cfg:       cfg,
		s:         cfg.settings(),
		clock:     clock.WallClock,
		log:       logger.WithComponent("delivery"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.meter == nil {
		e.meter = otel.Meter(instrumentationName)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	m, err := newMetrics(e.meter)
	if err != nil {
		return nil, err
	}
	e.metrics = m
	return e, nil
}

// Run ticks every poll interval until ctx is canceled. Store errors are
// logged and the batch is retried on the next tick.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("Delivery engine started", logger.Fields(
		"poll_interval", e.s.pollInterval.String(),
		"batch_size", e.cfg.BatchSize,
		"concurrency", e.cfg.Concurrency,
	))
	for {
		if _, err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn("Delivery tick failed", logger.Fields(logger.FieldError, err.Error()))
		}
		select {
		case <-ctx.Done():
			e.log.Info("Delivery engine stopped")
			return
		case <-e.clock.After(e.s.pollInterval):
		}
	}
}

// Tick releases stale claims, claims one batch and delivers it. Deliveries
// already started run to completion even if ctx is canceled; items not yet
// started are released back to pending.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	storeCtx := context.WithoutCancel(ctx)
	now := e.clock.Now()

	stale, err := e.store.ReleaseStale(storeCtx, now.Add(-e.s.staleClaimAfter))
	if err != nil {
		e.setLastErr(err)
		return res, fmt.Errorf("release stale claims: %w", err)
	}
	res.Stale = stale

	items, err := e.store.ClaimDue(storeCtx, e.cfg.BatchSize, now)
	if err != nil {
		e.setLastErr(err)
		// Rows claimed before the failure go back to pending so the whole
		// batch is retried on the next tick.
		for _, item := range items {
			log := e.log.WithFields(logger.Fields(logger.FieldOutboxID, item.ID, logger.FieldTenantID, item.TenantID))
			res.add(e.release(storeCtx, log, item))
		}
		return res, fmt.Errorf("claim due items: %w", err)
	}
	res.Claimed = len(items)
	e.metrics.recordBatch(storeCtx, len(items))
	e.setLastErr(nil)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			o := e.process(ctx, item)
			mu.Lock()
			res.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if res.Claimed > 0 {
		e.log.Debug("Delivery tick", logger.Fields(
			"claimed", res.Claimed,
			"delivered", res.Delivered,
			"retried", res.Retried,
			"dead", res.Dead,
			"released", res.Released,
			"stale", res.Stale,
		))
	}
	return res, nil
}

// process delivers one claimed item and records the outcome.
func (e *Engine) process(ctx context.Context, item *outbox.Item) outcome {
	storeCtx := context.WithoutCancel(ctx)
	log := e.log.WithFields(logger.Fields(
		logger.FieldOutboxID, item.ID,
		logger.FieldTenantID, item.TenantID,
		logger.FieldKind, string(item.Kind),
	))

	if ctx.Err() != nil {
		return e.release(storeCtx, log, item)
	}

	route, err := e.router.Resolve(item.Kind)
	if err != nil {
		return e.fail(storeCtx, log, item, err)
	}

	err = e.call(ctx, route, item)
	if errors.Is(err, resilience.ErrBulkheadFull) {
		return e.release(storeCtx, log, item)
	}
	if err != nil {
		return e.fail(storeCtx, log.WithFields(logger.Fields(logger.FieldDependency, route.Dependency)), item, err)
	}

	if err := e.store.MarkDelivered(storeCtx, item); err != nil {
		e.markError(log, "delivered", err)
		return outcomeNone
	}
	e.metrics.recordOutcome(storeCtx, string(item.Kind), outcomeDelivered)
	return outcomeDelivered
}

// call runs the transport through the dependency's bulkhead and breaker. The
// transport sees a context detached from ctx so shutdown does not abort a call
// in flight; the call timeout still bounds it.
func (e *Engine) call(ctx context.Context, route Route, item *outbox.Item) error {
	spanCtx, span := e.tracer.Start(ctx, "outbox.deliver", trace.WithAttributes(
		attribute.String("outbox.kind", string(item.Kind)),
		attribute.String("outbox.tenant_id", item.TenantID),
		attribute.Int("outbox.attempts", item.Attempts),
		attribute.String("outbox.dependency", route.Dependency),
	))
	defer span.End()

	start := time.Now()
	err := e.bulkheads.Get(route.Dependency).Execute(ctx, func() error {
		return e.breakers.Execute(route.Dependency, func() error {
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(spanCtx), e.s.callTimeout)
			defer cancel()
			return route.Transport.Deliver(callCtx, item)
		})
	})
	if errors.Is(err, resilience.ErrBulkheadFull) {
		return err
	}

	result := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		result = "circuit_open"
	case resilience.IsPermanent(err):
		result = "permanent"
	case err != nil:
		result = "error"
	}
	e.metrics.recordAttempt(context.WithoutCancel(ctx), route, result, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	return err
}

// fail applies the failure policy: permanent errors and an exhausted attempt
// budget dead-letter the item, anything else is rescheduled with backoff.
func (e *Engine) fail(ctx context.Context, log *logger.Logger, item *outbox.Item, cause error) outcome {
	attempts := item.Attempts + 1
	log = log.WithFields(logger.Fields(logger.FieldAttempts, attempts))

	if resilience.IsPermanent(cause) || attempts >= e.cfg.MaxAttempts {
		if err := e.store.MarkDead(ctx, item, cause); err != nil {
			e.markError(log, "dead", err)
			return outcomeNone
		}
		log.Warn("Outbox item dead-lettered", logger.Fields(
			"permanent", resilience.IsPermanent(cause),
			logger.FieldError, outbox.SanitizeError(cause),
		))
		e.metrics.recordOutcome(ctx, string(item.Kind), outcomeDead)
		return outcomeDead
	}

	next := e.clock.Now().Add(e.s.backoff.Delay(attempts))
	if err := e.store.MarkFailed(ctx, item, cause, next); err != nil {
		e.markError(log, "failed", err)
		return outcomeNone
	}
	fields := logger.Fields("next_attempt_at", next.UTC().Format(time.RFC3339), logger.FieldError, outbox.SanitizeError(cause))
	if errors.Is(cause, resilience.ErrCircuitOpen) {
		log.Debug("Delivery skipped, circuit open", fields)
	} else {
		log.Info("Delivery failed, rescheduled", fields)
	}
	e.metrics.recordOutcome(ctx, string(item.Kind), outcomeRetried)
	return outcomeRetried
}

func (e *Engine) release(ctx context.Context, log *logger.Logger, item *outbox.Item) outcome {
	if err := e.store.Release(ctx, item); err != nil {
		e.markError(log, "released", err)
		return outcomeNone
	}
	log.Debug("Claim released")
	return outcomeReleased
}

// markError logs a failed state transition. A lost claim means another
// engine or the stale sweep took the item over, which is not a store fault.
func (e *Engine) markError(log *logger.Logger, target string, err error) {
	if errors.Is(err, outbox.ErrInvalidState) {
		log.Warn("Claim lost before marking "+target, logger.Fields(logger.FieldError, err.Error()))
		return
	}
	e.setLastErr(err)
	log.Error("Failed to mark item "+target, logger.Fields(logger.FieldError, err.Error()))
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err
}

// LastError returns the store error seen by the most recent tick, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

package twophase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"gorm.io/gorm"

	"github.com/kbukum/resilience-core/database"
	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

// Transactor runs fn in a single local transaction. *database.DB implements it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn database.TransactionFunc) error
}

// Enqueuer schedules outbox items. *outbox.GormStore implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req outbox.EnqueueRequest) (*outbox.Item, bool, error)
}

// Request describes one two-phase operation.
type Request struct {
	TenantID string
	// Dependency names the external system and its circuit breaker.
	Dependency string
	// Operation is a short name used in errors and logs, e.g. "checkout".
	Operation string
	// External performs the side effect and returns its external id.
	External func(ctx context.Context) (string, error)
	// Commit persists the local record referencing externalID inside tx.
	Commit func(ctx context.Context, tx *gorm.DB, externalID string) error
	// Reason is carried on the compensation item. Defaults to "phase two failed".
	Reason string
}

func (r Request) validate() error {
	switch {
	case r.TenantID == "":
		return apperrors.InvalidInput("tenant_id", "is required")
	case r.Dependency == "":
		return apperrors.InvalidInput("dependency", "is required")
	case r.External == nil || r.Commit == nil:
		return apperrors.InvalidInput("request", "external and commit functions are required")
	}
	return nil
}

// Result is returned when both phases succeed.
type Result struct {
	ExternalID string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Coordinator) { c.log = log.WithComponent("twophase") }
}

// WithClock sets the clock used between compensation enqueue retries.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.retry.Clock = clk }
}

// WithRetry overrides the compensation enqueue retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Coordinator) {
		clk := c.retry.Clock
		c.retry = cfg
		if c.retry.Clock == nil {
			c.retry.Clock = clk
		}
	}
}

// Coordinator runs two-phase operations.
type Coordinator struct {
	tx       Transactor
	outbox   Enqueuer
	breakers *resilience.Registry
	retry    resilience.RetryConfig
	log      *logger.Logger
}

// NewCoordinator creates a coordinator. Phase 1 calls go through breakers, so
// the same registry the delivery engine uses sees both paths.
func NewCoordinator(tx Transactor, enq Enqueuer, breakers *resilience.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		tx:       tx,
		outbox:   enq,
		breakers: breakers,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Backoff:     resilience.Backoff{Base: 200 * time.Millisecond, Max: 2 * time.Second, Jitter: true},
			RetryIf:     retryEnqueue,
			Clock:       clock.WallClock,
		},
		log: logger.WithComponent("twophase"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs Phase 1 then Phase 2. A Phase 1 failure wraps ErrPhaseOne and
// leaves no local writes. A Phase 2 failure wraps ErrPhaseTwo after a
// compensation for the external id has been scheduled.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	op := req.Operation
	if op == "" {
		op = req.Dependency
	}
	log := c.log.WithContext(ctx).WithFields(logger.Fields(
		logger.FieldTenantID, req.TenantID,
		logger.FieldDependency, req.Dependency,
		"operation", op,
	))

	var externalID string
	err := c.breakers.Execute(req.Dependency, func() error {
		id, err := req.External(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("%s returned an empty external id", req.Dependency)
		}
		externalID = id
		return nil
	})
	if err != nil {
		log.Warn("Phase one failed", logger.Fields(logger.FieldError, outbox.SanitizeError(err)))
		return Result{}, fmt.Errorf("%w: %w", ErrPhaseOne, phaseOneError(op, req.Dependency, err))
	}

	err = c.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		return req.Commit(ctx, tx, externalID)
	})
	if err == nil {
		return Result{ExternalID: externalID}, nil
	}

	log = log.WithFields(logger.Fields("external_id", externalID))
	phaseTwo := fmt.Errorf("%w: %w", ErrPhaseTwo, apperrors.PhaseTwoFailed(op, externalID, err))
	item, compErr := c.compensate(ctx, req, externalID, err)
	if compErr != nil {
		log.Error("Compensation could not be scheduled", logger.Fields(
			logger.FieldError, outbox.SanitizeError(compErr),
			"cause", outbox.SanitizeError(err),
		))
		return Result{}, errors.Join(phaseTwo, fmt.Errorf("%w: %w", ErrCompensation, compErr))
	}
	log.Warn("Phase two failed, compensation scheduled", logger.Fields(
		logger.FieldOutboxID, item.ID,
		logger.FieldError, outbox.SanitizeError(err),
	))
	return Result{}, phaseTwo
}

// compensate enqueues the compensation item keyed by the external id. It runs
// detached from ctx so a caller that gave up does not leak the external effect.
func (c *Coordinator) compensate(ctx context.Context, req Request, externalID string, cause error) (*outbox.Item, error) {
	reason := req.Reason
	if reason == "" {
		reason = "phase two failed"
	}
	payload, err := json.Marshal(outbox.CompensationPayload{
		Dependency: req.Dependency,
		ExternalID: externalID,
		Operation:  req.Operation,
		Reason:     reason + ": " + outbox.SanitizeError(cause),
	})
	if err != nil {
		return nil, err
	}

	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("Retrying compensation enqueue", logger.Fields(
			"external_id", externalID,
			logger.FieldAttempts, attempt,
			logger.FieldError, err.Error(),
		))
	}
	return resilience.Retry(context.WithoutCancel(ctx), cfg, func(ctx context.Context) (*outbox.Item, error) {
		item, _, err := c.outbox.Enqueue(ctx, outbox.EnqueueRequest{
			TenantID:  req.TenantID,
			DedupeKey: externalID,
			Kind:      outbox.KindCompensation,
			Payload:   payload,
		})
		return item, err
	})
}

func phaseOneError(op, dependency string, err error) *apperrors.AppError {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.CircuitOpen(dependency).WithCause(err)
	}
	return apperrors.PhaseOneFailed(op, err)
}

// retryEnqueue retries store failures but not malformed items.
func retryEnqueue(err error) bool {
	return !errors.Is(err, outbox.ErrInvalidItem) && resilience.DefaultRetryIf(err)
}

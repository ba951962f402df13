// Package handler implements the HTTP API: enqueueing outbox items, the
// operator admin surface (dead letters, replay, breaker and limiter status)
// and the checkout example.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/ratelimit"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/server"
	"github.com/kbukum/resilience-core/server/endpoint"
	"github.com/kbukum/resilience-core/server/middleware"
	"github.com/kbukum/resilience-core/transport/payment"
)

// Outbox is the store surface the API needs. *outbox.GormStore implements it.
type Outbox interface {
	Enqueue(ctx context.Context, req outbox.EnqueueRequest) (*outbox.Item, bool, error)
	Get(ctx context.Context, tenantID, id string) (*outbox.Item, error)
	Replay(ctx context.Context, tenantID, id, actor string) (*outbox.Item, error)
	ListDead(ctx context.Context, tenantID string, page, pageSize int) ([]*outbox.Item, int64, error)
	ListReplays(ctx context.Context, tenantID, itemID string) ([]*outbox.ReplayAudit, error)
}

// Breakers exposes circuit breaker snapshots. *resilience.Registry implements it.
type Breakers interface {
	Statuses() []resilience.Snapshot
}

// Limiter is the rate limiter surface. *ratelimit.AdaptiveLimiter implements it.
type Limiter interface {
	middleware.Limiter
	Status() ratelimit.Status
}

// CheckoutStarter starts a checkout. *payment.Starter implements it.
type CheckoutStarter interface {
	Start(ctx context.Context, req payment.CheckoutRequest) (*payment.Intent, error)
}

// Deps are the collaborators of the API. Operators, Limiter and Checkout are
// optional: without Operators the admin routes are unauthenticated, without
// Limiter public routes are not rate limited, and without Checkout the
// checkout route is not registered.
type Deps struct {
	ServiceName  string
	Outbox       Outbox
	Breakers     Breakers
	Limiter      Limiter
	Operators    middleware.TokenVerifier
	Checkout     CheckoutStarter
	Health       endpoint.HealthChecker
	TenantHeader string
	Log          *logger.Logger
}

// Register mounts every route on r.
func Register(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = logger.GetGlobalLogger()
	}
	if d.TenantHeader == "" {
		d.TenantHeader = "X-Tenant-Id"
	}
	h := &handlers{deps: d, log: d.Log.WithComponent("api")}

	r.GET("/health", endpoint.Health(d.ServiceName, d.Health))
	r.GET("/health/live", endpoint.Liveness(d.ServiceName))
	r.GET("/health/ready", endpoint.Readiness(d.ServiceName, d.Health))

	public := r.Group("/v1")
	if d.Limiter != nil {
		public.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: d.Limiter,
			KeyFunc: middleware.TenantKey(d.TenantHeader),
		}))
	}
	public.POST("/outbox", h.enqueue)
	if d.Checkout != nil {
		public.POST("/payments/checkout", h.checkout)
	}

	admin := r.Group("/v1/admin")
	if d.Operators != nil {
		admin.Use(middleware.Operator(d.Operators))
	}
	admin.GET("/outbox/dead", h.listDead)
	admin.GET("/outbox/:id", h.getItem)
	admin.POST("/outbox/:id/replay", h.replay)
	admin.GET("/outbox/:id/replays", h.listReplays)
	admin.GET("/breakers", h.breakers)
	admin.GET("/ratelimit", h.rateLimit)
}

type handlers struct {
	deps Deps
	log  *logger.Logger
}

// fail maps domain errors onto AppErrors and writes the response.
func (h *handlers) fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		err = apperrors.NotFound("outbox item", c.Param("id"))
	case errors.Is(err, outbox.ErrInvalidState):
		err = apperrors.New(apperrors.ErrCodeInvalidState, err.Error(), http.StatusConflict)
	case errors.Is(err, outbox.ErrInvalidItem):
		err = apperrors.InvalidInput("item", err.Error())
	case errors.As(err, &appErr):
	default:
		h.log.WithContext(c.Request.Context()).Error("Request failed", logger.Fields(
			logger.FieldError, outbox.SanitizeError(err),
			"path", c.FullPath(),
		))
	}
	server.RespondWithError(c, err)
}

package main

import (
	"context"
	"fmt"

	"github.com/kbukum/resilience-core/auth"
	"github.com/kbukum/resilience-core/bootstrap"
	"github.com/kbukum/resilience-core/database"
	"github.com/kbukum/resilience-core/delivery"
	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/observability"
	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/ratelimit"
	"github.com/kbukum/resilience-core/redis"
	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/server"
	"github.com/kbukum/resilience-core/server/handler"
	"github.com/kbukum/resilience-core/transport/email"
	"github.com/kbukum/resilience-core/transport/export"
	"github.com/kbukum/resilience-core/transport/payment"
	"github.com/kbukum/resilience-core/transport/webhook"
	"github.com/kbukum/resilience-core/twophase"
)

// Breaker names of the built-in transports. The payment provider's name is
// configurable because checkout and compensation must share it.
const (
	webhookDependency = "webhook"
	emailDependency   = "email"
	storageDependency = "storage"
)

// wire builds the engine, the API and their collaborators once the database
// and Redis components are up. rc is nil when Redis is disabled.
func wire(ctx context.Context, a *bootstrap.App[*Config], db *database.DB, rc *redis.Client) error {
	cfg := a.Cfg
	log := a.Logger

	metrics, err := observability.NewMetrics(nil, log)
	if err != nil {
		return err
	}
	breakers := resilience.NewRegistry(cfg.breakerConfigs(),
		resilience.WithStateChangeHook(metrics.BreakerTransition),
	)
	store := outbox.NewGormStore(db.GormDB, outbox.WithLogger(log))

	router, paymentClient, err := buildRouter(ctx, cfg.Transports, log)
	if err != nil {
		return err
	}
	engine, err := delivery.NewEngine(store, router, breakers, cfg.Delivery, delivery.WithLogger(log))
	if err != nil {
		return err
	}
	if err := a.RegisterComponent(delivery.NewComponent(engine)); err != nil {
		return err
	}

	deps := handler.Deps{
		ServiceName:  cfg.Name,
		Outbox:       store,
		Breakers:     breakers,
		Health:       a.Components.HealthAll,
		TenantHeader: cfg.Server.TenantHeader,
		Log:          log,
	}
	if cfg.RateLimit.Enabled {
		var st ratelimit.Store
		if rc != nil {
			st = ratelimit.NewRedisStore(rc.Unwrap())
		}
		deps.Limiter = ratelimit.NewAdaptiveLimiter(st, cfg.RateLimit.Config,
			ratelimit.WithLogger(log),
			ratelimit.WithModeChangeHook(metrics.LimiterModeChange),
		)
	}
	if cfg.Auth.Enabled {
		ops, err := auth.NewOperators(cfg.Auth)
		if err != nil {
			return err
		}
		deps.Operators = ops
	} else {
		log.Warn("Operator auth disabled, admin API is unauthenticated")
	}
	if paymentClient != nil {
		coord := twophase.NewCoordinator(db, store, breakers, twophase.WithLogger(log))
		deps.Checkout = payment.NewStarter(paymentClient, coord, cfg.Transports.Payment.Dependency)
	}

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	handler.Register(srv.GinEngine(), deps)
	return a.RegisterComponent(server.NewComponent(srv))
}

// buildRouter creates a route per enabled transport. The payment client is
// returned for checkout; it is nil when payments are disabled.
func buildRouter(ctx context.Context, cfg TransportsConfig, log *logger.Logger) (*delivery.Router, *payment.Client, error) {
	router := delivery.NewRouter()

	if cfg.Webhook.Enabled {
		t, err := webhook.New(cfg.Webhook.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("webhook transport: %w", err)
		}
		router.Handle(delivery.Route{Kind: outbox.KindWebhook, Dependency: webhookDependency, Transport: t})
	}
	if cfg.Email.Enabled {
		t, err := email.New(cfg.Email.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("email transport: %w", err)
		}
		router.Handle(delivery.Route{Kind: outbox.KindEmail, Dependency: emailDependency, Transport: t})
	}
	if cfg.Export.Enabled {
		t, err := export.New(ctx, cfg.Export.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("export transport: %w", err)
		}
		router.Handle(delivery.Route{Kind: outbox.KindExport, Dependency: storageDependency, Transport: t})
	}

	var client *payment.Client
	if cfg.Payment.Enabled {
		var err error
		client, err = payment.NewClient(cfg.Payment.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("payment client: %w", err)
		}
		router.Handle(delivery.Route{
			Kind:       outbox.KindCompensation,
			Dependency: cfg.Payment.Dependency,
			Transport:  payment.NewCompensationTransport(client, cfg.Payment.Dependency, log),
		})
	}

	for _, kind := range outbox.Kinds {
		if _, err := router.Resolve(kind); err != nil {
			log.Warn("No transport configured, items of this kind will be dead-lettered", logger.Fields(
				logger.FieldKind, string(kind),
			))
		}
	}
	return router, client, nil
}

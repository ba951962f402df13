package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/resilience-core/component"
	"github.com/kbukum/resilience-core/logger"
)

// App runs a service with uniform lifecycle management. The type parameter C
// is the service config type.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(dbComponent)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return a.RegisterComponent(delivery.NewComponent(engine))
//	})
//	app.Run(context.Background())
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger

	gracefulTimeout time.Duration
	onConfigure     []func(ctx context.Context, app *App[C]) error
	onStop          []Hook
}

// NewApp creates a new application from a typed config. It applies defaults,
// validates the config, and initializes the logger.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	base := cfg.GetServiceConfig()
	o := resolveOptions(opts)

	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.Logger = logger.New(&base.Logging, base.Name)
		logger.SetGlobalLogger(app.Logger)
	}
	app.Components = component.NewRegistry(app.Logger)
	return app, nil
}

// RegisterComponent adds a component to the application's registry.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnConfigure registers a callback that runs after infrastructure components
// have started. Components registered from a callback are started right after.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// Run starts the components, runs the configure callbacks, starts any
// components they registered, then blocks until a signal or ctx ends and
// shuts everything down.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return errors.Join(err, a.Shutdown())
	}

	a.Logger.Info("Application ready, waiting for shutdown signal", logger.Fields(
		"name", a.Name,
		"version", a.Version,
	))
	a.WaitForSignal(ctx)

	return a.Shutdown()
}

// Start performs the startup sequence without blocking.
func (a *App[C]) Start(ctx context.Context) error {
	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
	}
	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("starting configured components: %w", err)
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}
	return nil
}

// ReadyCheck verifies that all registered components are healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			detail := h.Name + "=" + string(h.Status)
			if h.Message != "" {
				detail += "(" + h.Message + ")"
			}
			unhealthy = append(unhealthy, detail)
		}
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// WaitForSignal blocks until SIGINT/SIGTERM or context cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown runs OnStop hooks and stops all components within the graceful timeout.
func (a *App[C]) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		errs = append(errs, err)
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		errs = append(errs, err)
	}

	a.Logger.Info("Application shutdown complete")
	return errors.Join(errs...)
}

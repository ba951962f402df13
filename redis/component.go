package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/resilience-core/component"
	"github.com/kbukum/resilience-core/logger"
)

// Component wraps Client and implements component.Component.
//
// A failed ping at startup is logged rather than returned: the rate limiter
// degrades to its in-memory fallback while Redis is unreachable, so the
// service keeps serving.
type Component struct {
	client *Client
	cfg    Config
	log    *logger.Logger
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Redis component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Component{
		cfg: cfg,
		log: log.WithComponent("redis"),
	}
}

// Client returns the underlying *Client, or nil if not started or disabled.
func (c *Component) Client() *Client {
	return c.client
}

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start creates the client and checks connectivity.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Redis disabled, skipping")
		return nil
	}
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	c.client = client

	if err := client.Ping(ctx); err != nil {
		c.log.Warn("Redis unreachable at startup", logger.Fields(logger.FieldError, err.Error()))
		return nil
	}
	c.log.Info("Redis component started")
	return nil
}

// Stop closes the Redis connection.
func (c *Component) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health reports degraded rather than unhealthy when Redis is unreachable.
func (c *Component) Health(ctx context.Context) component.Health {
	if !c.cfg.Enabled {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	}
	if c.client == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "redis not initialized"}
	}
	if err := c.client.Ping(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

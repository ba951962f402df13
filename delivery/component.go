package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/resilience-core/component"
	"github.com/kbukum/resilience-core/logger"
)

// Component runs an Engine's poll loop under the component registry.
type Component struct {
	engine *Engine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ component.Component = (*Component)(nil)

// NewComponent wraps engine.
func NewComponent(engine *Engine) *Component {
	return &Component{engine: engine}
}

// Name returns the component name.
func (c *Component) Name() string { return "delivery-engine" }

// Start launches the poll loop. The loop has its own context so it outlives
// the start context.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return fmt.Errorf("delivery engine already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		c.engine.Run(ctx)
	}(c.done)
	return nil
}

// Stop cancels the loop and waits for in-flight deliveries, bounded by the
// engine's shutdown timeout and ctx.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()

	ctx, stop := context.WithTimeout(ctx, c.engine.s.shutdownTimeout)
	defer stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.engine.log.Warn("Delivery engine did not stop in time", logger.Fields(logger.FieldError, ctx.Err().Error()))
		return fmt.Errorf("delivery engine stop: %w", ctx.Err())
	}
}

// Health reports degraded while the last tick failed on the store.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.Lock()
	running := c.done != nil
	c.mu.Unlock()
	if !running {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not running"}
	}
	if err := c.engine.LastError(); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: err.Error()}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

package server

import (
	"context"

	"github.com/kbukum/resilience-core/component"
)

const componentName = "http-server"

var _ component.Component = (*Component)(nil)

// Component wraps Server to implement component.Component.
type Component struct {
	server *Server
}

// NewComponent returns a component backed by s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

// Name returns the component name.
func (c *Component) Name() string { return componentName }

// Start starts the HTTP server.
func (c *Component) Start(ctx context.Context) error {
	return c.server.Start(ctx)
}

// Stop shuts the HTTP server down.
func (c *Component) Stop(ctx context.Context) error {
	return c.server.Stop(ctx)
}

// Health reports whether the server is accepting connections.
func (c *Component) Health(_ context.Context) component.Health {
	if c.server.serving.Load() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{
		Name:    componentName,
		Status:  component.StatusUnhealthy,
		Message: "not serving",
	}
}

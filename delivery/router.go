package delivery

import (
	"context"
	"fmt"

	"github.com/kbukum/resilience-core/outbox"
	"github.com/kbukum/resilience-core/resilience"
)

// Transport delivers one item to its external dependency. Errors wrapped with
// resilience.Permanent dead-letter the item at once; anything else is retried.
type Transport interface {
	Deliver(ctx context.Context, item *outbox.Item) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, item *outbox.Item) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, item *outbox.Item) error {
	return f(ctx, item)
}

// Route binds a kind to its transport and the breaker guarding it.
type Route struct {
	Kind       outbox.Kind
	Dependency string
	Transport  Transport
}

// Router resolves item kinds to routes.
type Router struct {
	routes map[outbox.Kind]Route
}

// NewRouter creates a router from routes. A later route for the same kind
// replaces an earlier one.
func NewRouter(routes ...Route) *Router {
	r := &Router{routes: make(map[outbox.Kind]Route, len(routes))}
	for _, route := range routes {
		r.Handle(route)
	}
	return r
}

// Handle registers route.
func (r *Router) Handle(route Route) {
	if route.Dependency == "" {
		route.Dependency = string(route.Kind)
	}
	r.routes[route.Kind] = route
}

// Resolve returns the route for kind. An unknown kind is a permanent error:
// no later attempt can find a transport that is not configured now.
func (r *Router) Resolve(kind outbox.Kind) (Route, error) {
	route, ok := r.routes[kind]
	if !ok || route.Transport == nil {
		return Route{}, resilience.Permanent(fmt.Errorf("no transport for kind %q", kind))
	}
	return route, nil
}

// Dependencies lists the breaker names used by the registered routes.
func (r *Router) Dependencies() []string {
	seen := make(map[string]bool, len(r.routes))
	var out []string
	for _, kind := range outbox.Kinds {
		route, ok := r.routes[kind]
		if !ok || seen[route.Dependency] {
			continue
		}
		seen[route.Dependency] = true
		out = append(out, route.Dependency)
	}
	return out
}

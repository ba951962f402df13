package resilience

import (
	"sort"
	"sync"

	"github.com/juju/clock"
)

// Registry holds one breaker per dependency name. Breakers are created on
// first use and shared by every caller of that dependency.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	configs  map[string]CircuitBreakerConfig
	defaults CircuitBreakerConfig
	clock    clock.Clock
	onChange func(name string, from, to State)
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock handed to every breaker the registry creates.
func WithClock(clk clock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clk }
}

// WithStateChangeHook installs a transition hook on every breaker.
func WithStateChangeHook(fn func(name string, from, to State)) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

// WithDefaults sets the config used for names without an explicit entry.
func WithDefaults(cfg CircuitBreakerConfig) RegistryOption {
	return func(r *Registry) { r.defaults = cfg }
}

// NewRegistry creates a registry with per-name configuration overrides.
func NewRegistry(configs map[string]CircuitBreakerConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*CircuitBreaker),
		configs:  make(map[string]CircuitBreakerConfig, len(configs)),
		defaults: DefaultCircuitBreakerConfig(""),
	}
	for name, cfg := range configs {
		r.configs[name] = cfg
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg, ok := r.configs[name]
	if !ok {
		cfg = r.defaults
	}
	cfg.Name = name
	if cfg.Clock == nil {
		cfg.Clock = r.clock
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = r.onChange
	}
	cb = NewCircuitBreaker(cfg)
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through the named breaker.
func (r *Registry) Execute(name string, fn func() error) error {
	return r.Get(name).Execute(fn)
}

// Statuses returns snapshots of every configured or created breaker, by name.
func (r *Registry) Statuses() []Snapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.configs)+len(r.breakers))
	seen := make(map[string]bool)
	for name := range r.configs {
		names = append(names, name)
		seen[name] = true
	}
	for name := range r.breakers {
		if !seen[name] {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.Get(name).Snapshot())
	}
	return out
}

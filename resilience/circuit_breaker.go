package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows a limited number of probe requests.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half_open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// ErrCircuitOpen is returned without invoking the guarded call when the
// breaker is open or its half-open probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the guarded dependency (e.g. "stripe", "email").
	Name string
	// FailureThreshold is the number of failures inside Window that opens the circuit.
	FailureThreshold int
	// Window is the rolling period in which failures are counted.
	Window time.Duration
	// Recovery is how long the circuit stays open before admitting probes.
	Recovery time.Duration
	// HalfOpenMaxCalls is the number of probes admitted in half-open state,
	// and the number of consecutive successes required to close again.
	HalfOpenMaxCalls int
	// IsFailure decides whether an error counts against the dependency.
	// Defaults to DefaultIsFailure.
	IsFailure func(error) bool
	// OnStateChange is called (under the breaker lock) when state changes.
	OnStateChange func(name string, from, to State)
	// Clock drives window and recovery timing. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Recovery:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// DefaultIsFailure counts every error except caller cancellation, breaker
// rejections and permanent errors. A permanent error means the dependency
// answered and refused the request, which says nothing about its health.
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	return !IsPermanent(err)
}

// CircuitBreaker guards a single external dependency.
//
// States:
//   - Closed: calls pass through; failures are counted inside a rolling window
//   - Open: calls fail with ErrCircuitOpen until Recovery has elapsed
//   - Half-Open: up to HalfOpenMaxCalls probes decide between closed and open
//
// Results are tagged with the generation they were admitted in, so a call that
// was started before a transition cannot move the breaker afterwards.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	generation    uint64
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	halfOpenCalls int
	successes     int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	if config.Recovery <= 0 {
		config.Recovery = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = DefaultIsFailure
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	return &CircuitBreaker{
		config:      config,
		state:       StateClosed,
		windowStart: config.Clock.Now(),
	}
}

// Name returns the guarded dependency name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn if the circuit rejects the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	generation, ok := cb.allowRequest()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	cb.recordResult(generation, err)
	return err
}

// State returns the recorded circuit breaker state. An open breaker whose
// recovery has elapsed still reports open; the next call moves it to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the failure count of the current window.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the circuit back to closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed, cb.config.Clock.Now())
}

// allowRequest decides admission and returns the generation of the admitted call.
func (cb *CircuitBreaker) allowRequest() (uint64, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState(cb.config.Clock.Now()) {
	case StateClosed:
		return cb.generation, true
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return cb.generation, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// recordResult applies the outcome of a call admitted in generation.
func (cb *CircuitBreaker) recordResult(generation uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock.Now()
	state := cb.currentState(now)
	if generation != cb.generation {
		return
	}

	switch {
	case err == nil:
		cb.onSuccess(state, now)
	case cb.config.IsFailure(err):
		cb.onFailure(state, now)
	case state == StateHalfOpen:
		// Not a dependency failure; hand the probe slot back.
		cb.halfOpenCalls--
	}
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		cb.failures = 0
		cb.windowStart = now
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMaxCalls {
			cb.toState(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		if now.Sub(cb.windowStart) > cb.config.Window {
			cb.windowStart = now
			cb.failures = 0
		}
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.toState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.toState(StateOpen, now)
	}
}

// currentState returns the state, moving open to half-open once recovered.
func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.config.Recovery {
		cb.toState(StateHalfOpen, now)
	}
	return cb.state
}

// toState transitions to a new state and starts a new generation.
func (cb *CircuitBreaker) toState(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.halfOpenCalls = 0
	cb.successes = 0

	switch to {
	case StateClosed:
		cb.failures = 0
		cb.windowStart = now
	case StateOpen:
		cb.failures = 0
		cb.openedAt = now
	}

	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

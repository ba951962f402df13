package resilience

import "time"

// Snapshot is a read-only view of a breaker for operational tooling.
type Snapshot struct {
	Name               string    `json:"name"`
	State              State     `json:"state"`
	Failures           int       `json:"failure_count"`
	WindowStartAt      time.Time `json:"window_start_at"`
	OpenedAt           time.Time `json:"opened_at,omitempty"`
	HalfOpenProbesUsed int       `json:"half_open_probes_used"`

	FailureThreshold int           `json:"failure_threshold"`
	Window           time.Duration `json:"window_ns"`
	Recovery         time.Duration `json:"recovery_ns"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`
}

// Snapshot returns the breaker's recorded state and counters. It never
// transitions the breaker.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.state
	s := Snapshot{
		Name:               cb.config.Name,
		State:              state,
		Failures:           cb.failures,
		WindowStartAt:      cb.windowStart,
		HalfOpenProbesUsed: cb.halfOpenCalls,
		FailureThreshold:   cb.config.FailureThreshold,
		Window:             cb.config.Window,
		Recovery:           cb.config.Recovery,
		HalfOpenMaxCalls:   cb.config.HalfOpenMaxCalls,
	}
	if state != StateClosed {
		s.OpenedAt = cb.openedAt
	}
	return s
}

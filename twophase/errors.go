package twophase

import "errors"

var (
	// ErrPhaseOne is returned when the external call fails or its breaker is
	// open. Nothing was written locally.
	ErrPhaseOne = errors.New("two-phase: external call failed")

	// ErrPhaseTwo is returned when the local commit fails after the external
	// call succeeded. A compensation has been scheduled unless the error also
	// wraps ErrCompensation.
	ErrPhaseTwo = errors.New("two-phase: local commit failed")

	// ErrCompensation is joined into a Phase 2 error when the compensation
	// item could not be enqueued.
	ErrCompensation = errors.New("two-phase: compensation not scheduled")
)

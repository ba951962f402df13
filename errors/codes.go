package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable)
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	// ErrCodeCircuitOpen indicates a dependency's circuit breaker rejected the call.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// Resource errors
const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	// ErrCodeInvalidState indicates a lifecycle transition that is not allowed
	// from the resource's current state (e.g. replaying a delivered item).
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Validation errors
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Authentication/Authorization errors
const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
)

// Internal and dependency errors
const (
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	// ErrCodePhaseOneFailed indicates the external side effect of a two-phase
	// operation could not be performed; nothing was written locally.
	ErrCodePhaseOneFailed ErrorCode = "PHASE_ONE_FAILED"
	// ErrCodePhaseTwoFailed indicates the local commit of a two-phase operation
	// failed after the external side effect happened; compensation is scheduled.
	ErrCodePhaseTwoFailed ErrorCode = "PHASE_TWO_FAILED"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeCircuitOpen:        true,
	ErrCodeDatabaseError:      true,
	ErrCodeExternalService:    true,
	ErrCodePhaseOneFailed:     true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

package resilience

import "errors"

// PermanentError marks a failure that retrying cannot fix, such as a
// malformed payload or a 4xx rejection from the dependency.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// RetryableError marks a transient failure explicitly.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Permanent wraps err as a permanent failure. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retryable wraps err as a transient failure. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
// Unclassified errors are treated as retryable.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

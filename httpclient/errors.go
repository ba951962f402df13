package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ErrorCode classifies HTTP client errors.
type ErrorCode int

const (
	// ErrCodeTimeout is a request timeout, client side or HTTP 408.
	ErrCodeTimeout ErrorCode = iota
	// ErrCodeConnection is a transport-level failure (refused, DNS, reset).
	ErrCodeConnection
	// ErrCodeAuth is HTTP 401 or 403.
	ErrCodeAuth
	// ErrCodeNotFound is HTTP 404.
	ErrCodeNotFound
	// ErrCodeConflict is HTTP 409.
	ErrCodeConflict
	// ErrCodeRateLimit is HTTP 425 or 429.
	ErrCodeRateLimit
	// ErrCodeValidation is any other 4xx, or a request that could not be built.
	ErrCodeValidation
	// ErrCodeServer is a 5xx.
	ErrCodeServer
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeConnection:
		return "connection"
	case ErrCodeAuth:
		return "auth"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeConflict:
		return "conflict"
	case ErrCodeRateLimit:
		return "rate_limit"
	case ErrCodeValidation:
		return "validation"
	case ErrCodeServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a classified HTTP client error.
type Error struct {
	// StatusCode is 0 for connection-level errors.
	StatusCode int
	Code       ErrorCode
	Message    string
	Retryable  bool
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError creates a retryable connection error.
func NewConnectionError(err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
}

// NewValidationError creates a non-retryable error for a request that could
// not be built.
func NewValidationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

// ClassifyStatusCode converts a response status into a typed error, nil for
// 2xx. 408, 425, 429 and 5xx are retryable; every other status is not.
func ClassifyStatusCode(statusCode int, body []byte) *Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	e := &Error{
		StatusCode: statusCode,
		Message:    statusMessage(statusCode, body),
		Body:       body,
	}
	switch {
	case statusCode == http.StatusRequestTimeout:
		e.Code, e.Retryable = ErrCodeTimeout, true
	case statusCode == http.StatusTooEarly || statusCode == http.StatusTooManyRequests:
		e.Code, e.Retryable = ErrCodeRateLimit, true
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Code = ErrCodeAuth
	case statusCode == http.StatusNotFound:
		e.Code = ErrCodeNotFound
	case statusCode == http.StatusConflict:
		e.Code = ErrCodeConflict
	case statusCode >= 400 && statusCode < 500:
		e.Code = ErrCodeValidation
	case statusCode >= 500:
		e.Code, e.Retryable = ErrCodeServer, true
	default:
		e.Code = ErrCodeServer
	}
	return e
}

const maxSnippetBytes = 200

// statusMessage keeps a short prefix of the body for diagnostics, cut on a
// character boundary.
func statusMessage(statusCode int, body []byte) string {
	msg := http.StatusText(statusCode)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	}
	if len(body) > 0 {
		snippet := body
		if len(snippet) > maxSnippetBytes {
			cut := maxSnippetBytes
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			snippet = body[:cut]
		}
		msg += ": " + string(snippet)
	}
	return msg
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound checks for a 404.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsConflict checks for a 409.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeConflict
}

// IsTimeout checks for a client timeout or HTTP 408.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeTimeout
}

// IsRetryable reports whether err is a retryable client error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

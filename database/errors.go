package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/resilience-core/errors"
)

// PostgreSQL SQLSTATE codes that clear up on retry. Class 08 (connection
// exception) is matched by prefix in IsConnectionError.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

const sqlStateUniqueViolation = "23505"

// Message fragments for drivers without typed errors, sqlite in particular.
var (
	connectionPatterns = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no route to host",
		"network is unreachable",
		"database is closed",
	}
	retryablePatterns = []string{
		"deadlock",
		"database is locked",
		"database table is locked",
		"lock timeout",
		"too many connections",
	}
)

// SQLState returns the PostgreSQL error code in err's chain, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsConnectionError reports whether err means the database could not be
// reached or the connection was lost.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if strings.HasPrefix(SQLState(err), "08") {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(err, connectionPatterns)
}

// IsRetryableError reports whether the same statement may succeed if run
// again: lost connections, lock conflicts and statement timeouts.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if retryableSQLStates[SQLState(err)] {
		return true
	}
	return containsAny(err, retryablePatterns)
}

// IsDuplicateError reports a unique constraint violation.
func IsDuplicateError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		SQLState(err) == sqlStateUniqueViolation ||
		containsAny(err, []string{"unique constraint failed"})
}

func containsAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// FromDatabase converts a database error to an AppError about resource.
// Lost connections and lock conflicts map to 503; other failures are a 500
// DATABASE_ERROR.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(resource, "")
	case IsDuplicateError(err):
		return (&apperrors.AppError{
			Code:       apperrors.ErrCodeAlreadyExists,
			Message:    fmt.Sprintf("A %s with these details already exists.", resource),
			HTTPStatus: http.StatusConflict,
			Retryable:  false,
		}).WithCause(err)
	case IsConnectionError(err):
		return (&apperrors.AppError{
			Code:       apperrors.ErrCodeDatabaseError,
			Message:    "Database is temporarily unavailable. Please try again.",
			HTTPStatus: http.StatusServiceUnavailable,
			Retryable:  true,
		}).WithCause(err)
	case IsRetryableError(err):
		return (&apperrors.AppError{
			Code:       apperrors.ErrCodeDatabaseError,
			Message:    "Database operation failed. Please try again.",
			HTTPStatus: http.StatusServiceUnavailable,
			Retryable:  true,
		}).WithCause(err)
	}

	return apperrors.DatabaseError(err)
}

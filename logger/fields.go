package logger

import (
	"context"
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldTenantID   = "tenant_id"
	FieldOutboxID   = "outbox_id"
	FieldKind       = "kind"
	FieldDependency = "dependency"
	FieldAttempts   = "attempts"
	FieldState      = "state"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	tenantIDKey  ctxKey = "tenant_id"
)

// ContextWithRequestID stores a request id for WithContext to pick up.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithTenantID stores a tenant id for WithContext to pick up.
func ContextWithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("item dead-lettered", logger.Fields("outbox_id", id, "attempts", 8))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		"operation": op,
		FieldError:  err.Error(),
	}
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"operation":   op,
		FieldDuration: d.Milliseconds(),
	}
}

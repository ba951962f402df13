package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/resilience-core/logger"
)

// RequestLogger logs every request with method, path, status, response size
// and duration. Error responses also carry the envelope code. Health checks
// are not logged.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				logger.FieldDuration, duration.Milliseconds(),
			)
			if code := rec.errorCode(); code != "" {
				fields["error_code"] = code
			}
			if duration > 500*time.Millisecond {
				fields["slow"] = true
			}
			logByStatus(log.WithContext(r.Context()), fields, rec.status)
		})
	}
}

func isHealthEndpoint(path string) bool {
	switch path {
	case "/health", "/health/live", "/health/ready":
		return true
	}
	return false
}

func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("Request completed", fields)
	case status >= 400:
		log.Warn("Request completed", fields)
	default:
		log.Debug("Request completed", fields)
	}
}

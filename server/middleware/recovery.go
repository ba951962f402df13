package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
)

// Recovery recovers panics, logs the stack and answers 500 with an
// INTERNAL_ERROR envelope.
func Recovery(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithContext(r.Context()).Error("Panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"method", r.Method,
				))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(apperrors.Internal(nil).ResponseFor(requestID(r)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

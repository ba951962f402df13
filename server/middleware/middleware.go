package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/logger"
)

// Middleware wraps an http.Handler. Server-level middleware runs around the
// root mux so it covers every route, including ones not served by Gin.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares. The first in the list is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// AbortWithError ends the request with err's error envelope, tagged with the
// request id. Errors that are not AppErrors become a generic 500.
func AbortWithError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ResponseFor(requestID(c.Request)))
}

// requestID reads the id set by RequestID. Middleware running outside it
// still sees the header RequestID writes back onto the request.
func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(RequestIDHeader)
}

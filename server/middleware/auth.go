package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/resilience-core/auth"
	"github.com/kbukum/resilience-core/auth/authctx"
	apperrors "github.com/kbukum/resilience-core/errors"
)

// OperatorKey is the gin context key holding the operator's subject.
const OperatorKey = "operator"

// TokenVerifier verifies an operator token. *auth.Operators implements it.
type TokenVerifier interface {
	Verify(token string) (*auth.OperatorClaims, error)
}

// Operator requires a Bearer token carrying the operator role. A missing or
// invalid token is 401; a valid token without the role is 403.
func Operator(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			AbortWithError(c, apperrors.Unauthorized("Bearer token required"))
			return
		}
		claims, err := verifier.Verify(token)
		if errors.Is(err, auth.ErrNotOperator) {
			AbortWithError(c, apperrors.Forbidden("operator role required"))
			return
		}
		if err != nil {
			AbortWithError(c, apperrors.Unauthorized("invalid token"))
			return
		}
		c.Set(OperatorKey, claims.Subject)
		c.Request = c.Request.WithContext(authctx.Set(c.Request.Context(), claims))
		c.Next()
	}
}

package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/resilience-core/errors"
	"github.com/kbukum/resilience-core/ratelimit"
)

// Limiter decides whether a keyed request may proceed.
// *ratelimit.AdaptiveLimiter implements it.
type Limiter interface {
	Decide(ctx context.Context, key string) ratelimit.Decision
}

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc extracts the rate limit key. Defaults to the client IP.
	KeyFunc func(*gin.Context) string
	// Now is the time source for Retry-After. Defaults to time.Now.
	Now func() time.Time
}

// RateLimit sets X-RateLimit-* headers on every response and rejects
// requests over the limit with 429 RATE_LIMITED and Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(c *gin.Context) {
		d := cfg.Limiter.Decide(c.Request.Context(), cfg.KeyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			c.Next()
			return
		}
		retryAfter := int64(math.Ceil(d.ResetAt.Sub(cfg.Now()).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		AbortWithError(c, apperrors.RateLimited().WithDetail("mode", string(d.Mode)))
	}
}

// IPBasedKey keys on the client IP.
func IPBasedKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// TenantKey keys on the tenant header when present, otherwise the client IP.
func TenantKey(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if tenant := c.GetHeader(header); tenant != "" {
			return "tenant:" + tenant
		}
		return IPBasedKey(c)
	}
}

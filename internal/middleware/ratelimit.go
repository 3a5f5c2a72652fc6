package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/ratelimit"
)

// Checker is the part of *ratelimit.Limiter the middleware needs.
type Checker interface {
	Check(ctx context.Context, scope ratelimit.Scope, identity string) (ratelimit.Result, error)
}

// RateLimit applies the user scope to authenticated requests and the anon
// scope, keyed by client IP, to everything else. Mount it after
// AuthMiddleware on protected groups and on its own for public routes.
//
// A limiter error lets the request through; the limiter already fails open
// on store outages, this only covers unknown scopes and empty identities.
func RateLimit(limiter Checker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, identity := ratelimit.ScopeAnon, c.ClientIP()
		if id := GetUserID(c); id != uuid.Nil {
			scope, identity = ratelimit.ScopeUser, id.String()
		}

		res, err := limiter.Check(c.Request.Context(), scope, identity)
		if err != nil {
			logger.Warn("rate limit check failed, allowing request",
				zap.String("scope", string(scope)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		if !res.Allowed {
			c.Header("Retry-After", RetryAfterSeconds(res.RetryAfter.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "rate limit exceeded",
				"reason": apperr.ReasonRateLimited,
			})
			return
		}
		c.Next()
	}
}

// RetryAfterSeconds renders a Retry-After value, rounding up to at least 1.
func RetryAfterSeconds(secs float64) string {
	return strconv.Itoa(max(int(math.Ceil(secs)), 1))
}

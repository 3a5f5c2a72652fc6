package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/middleware"
)

// writeError maps the service error taxonomy onto HTTP.
//
//	validation   -> 400 {"error", "field", "reason"?}
//	forbidden    -> 403 {"error", "reason"}
//	not found    -> 404
//	conflict     -> 409 {"error", "reason"}
//	rate limited -> 429 + Retry-After
//	anything else -> 500, logged with op; the client never sees the cause.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		validation *apperr.ValidationError
		forbidden  *apperr.AuthorizationError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
		limited    *apperr.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		body := gin.H{"error": validation.Error(), "field": validation.Field}
		if validation.Reason != "" {
			body["reason"] = validation.Reason
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "reason": forbidden.Reason})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "reason": conflict.Reason})
	case errors.As(err, &limited):
		c.Header("Retry-After", middleware.RetryAfterSeconds(limited.RetryAfter.Seconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "reason": apperr.ReasonRateLimited})
	default:
		logger.Error(op+" failed",
			zap.Stringer("user_id", middleware.GetUserID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

// bindJSON parses the body. binding tags only check shape; the services
// own the real validation rules.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// uuidParam reads a UUID path parameter, writing a 400 if it doesn't parse.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// parseUUID parses an id sent in a request body.
func parseUUID(c *gin.Context, field, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + field, "field": field})
		return uuid.Nil, false
	}
	return id, true
}

// int64Param reads a numeric path parameter (message ids).
func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
		return 0, false
	}
	return n, true
}

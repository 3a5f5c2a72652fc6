package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lalith-99/huddle/internal/apperr"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", apperr.Validation("content", "cannot be blank"), http.StatusBadRequest, `"field":"content"`},
		{"validation reason", &apperr.ValidationError{Field: "parent_id", Message: "x", Reason: apperr.ReasonNestedThread}, http.StatusBadRequest, `"reason":"NESTED_THREAD"`},
		{"forbidden", apperr.Forbidden(apperr.ReasonNotMember), http.StatusForbidden, `"reason":"NOT_MEMBER"`},
		{"wrapped forbidden", fmt.Errorf("send: %w", apperr.Forbidden(apperr.ReasonNotOwner)), http.StatusForbidden, `"reason":"NOT_OWNER"`},
		{"not found", apperr.NotFound("channel"), http.StatusNotFound, `channel not found`},
		{"conflict", apperr.AlreadyExists("user"), http.StatusConflict, `"reason":"ALREADY_EXISTS"`},
		{"rate limited", &apperr.RateLimitError{Scope: "messages", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, `"reason":"RATE_LIMITED"`},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, `"error":"do thing failed"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			writeError(c, zap.New(core), "do thing", tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "connection refused", "internal causes never leak")
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, 1, logs.Len())
			} else {
				assert.Zero(t, logs.Len())
			}
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "2", w.Header().Get("Retry-After"))
			}
		})
	}
}

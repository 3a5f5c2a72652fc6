package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("emoji", "is required"), ErrValidation},
		{"forbidden", Forbidden(ReasonNotMember), ErrForbidden},
		{"not found", NotFound("channel"), ErrNotFound},
		{"conflict", AlreadyExists("workspace member"), ErrConflict},
		{"rate limited", &RateLimitError{Scope: "user", RetryAfter: time.Minute}, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			for _, other := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrConflict, ErrRateLimited} {
				if other != tt.sentinel {
					assert.False(t, errors.Is(wrapped, other), "unexpected match with %v", other)
				}
			}
		})
	}
}

func TestReasonOf(t *testing.T) {
	reason, ok := ReasonOf(fmt.Errorf("join: %w", Forbidden(ReasonPrivateChannel)))
	assert.True(t, ok)
	assert.Equal(t, ReasonPrivateChannel, reason)

	reason, ok = ReasonOf(AlreadyExists("workspace member"))
	assert.True(t, ok)
	assert.Equal(t, ReasonAlreadyExists, reason)

	reason, ok = ReasonOf(&RateLimitError{Scope: "messages"})
	assert.True(t, ok)
	assert.Equal(t, ReasonRateLimited, reason)

	_, ok = ReasonOf(NotFound("message"))
	assert.False(t, ok)
}

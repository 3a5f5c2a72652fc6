package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/lalith-99/huddle/internal/repository"
)

func TestMapInsertErr(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "workspaces_slug_key"})
	assert.ErrorIs(t, mapInsertErr(dup), repository.ErrDuplicate)

	fk := &pgconn.PgError{Code: "23503"}
	assert.Same(t, error(fk), mapInsertErr(fk))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapInsertErr(plain))
}

// retryableErr reports that nothing reached the server.
type retryableErr struct{}

func (retryableErr) Error() string     { return "dial tcp: connection refused" }
func (retryableErr) SafeToRetry() bool { return true }

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("retries a safe error once", func(t *testing.T) {
		calls := 0
		v, err := retryOnce(ctx, func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, retryableErr{}
			}
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after the second attempt", func(t *testing.T) {
		calls := 0
		_, err := retryOnce(ctx, func(context.Context) (int, error) {
			calls++
			return 0, retryableErr{}
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		_, err := retryOnce(ctx, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("syntax error")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry a cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		_, _ = retryOnce(cctx, func(context.Context) (int, error) {
			calls++
			return 0, retryableErr{}
		})
		assert.Equal(t, 1, calls)
	})
}

func TestSQLHelpers(t *testing.T) {
	assert.Equal(t, "u.id, u.email, u.created_at", prefixed("u", "id, email, created_at"))
	assert.Equal(t, `50\% off\_now\\`, escapeLike(`50% off_now\`))
}

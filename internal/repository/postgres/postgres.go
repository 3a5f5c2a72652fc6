package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lalith-99/huddle/internal/repository"
)

// uniqueViolation is SQLSTATE 23505.
const uniqueViolation = "23505"

// mapInsertErr turns a unique-constraint violation into repository.ErrDuplicate.
func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// retryOnce runs a read, and runs it a second time if the first attempt
// failed before anything reached the server (pgconn.SafeToRetry). Only
// idempotent reads go through here.
func retryOnce[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	v, err := read(ctx)
	if err != nil && pgconn.SafeToRetry(err) && ctx.Err() == nil {
		return read(ctx)
	}
	return v, err
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// prefixed qualifies each column of a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, email, username, display_name, bio, avatar_url, status, password_hash, last_seen, created_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.DisplayName,
		&u.Bio,
		&u.AvatarURL,
		&u.Status,
		&u.PasswordHash,
		&u.LastSeen,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// getOne runs a single-row user query, mapping no rows to nil, nil.
func (s *UserStore) getOne(ctx context.Context, op, query string, args ...any) (*models.User, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.User, error) {
		u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return u, nil
	})
}

// Create inserts a new user row. Postgres generates the UUID and timestamps.
func (s *UserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, username, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	created, err := scanUser(s.pool.QueryRow(ctx, query, u.Email, u.Username, u.DisplayName, u.PasswordHash))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", mapInsertErr(err))
	}
	return created, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.getOne(ctx, "get user", `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// GetByEmail is used for login: you type your email, we find you.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return make([]models.User, 0), nil
	}
	return retryOnce(ctx, func(ctx context.Context) ([]models.User, error) {
		return s.list(ctx, "list users", `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	})
}

func (s *UserStore) list(ctx context.Context, op, query string, args ...any) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (*models.User, error) {
	// COALESCE keeps the stored value for every field left nil.
	query := `
		UPDATE users SET
			display_name = COALESCE($2, display_name),
			bio          = COALESCE($3, bio),
			avatar_url   = COALESCE($4, avatar_url)
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID, upd.DisplayName, upd.Bio, upd.AvatarURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus, seenAt time.Time) (*models.User, error) {
	query := `
		UPDATE users SET status = $2, last_seen = $3
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, query, userID, status, seenAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserStore) SearchVisible(ctx context.Context, actorID uuid.UUID, query string, limit int) ([]models.User, error) {
	// Only users who share a workspace with the actor are searchable.
	sql := `
		SELECT DISTINCT ` + prefixed("u", userColumns) + `
		FROM users u
		JOIN workspace_members theirs ON theirs.user_id = u.id
		JOIN workspace_members mine   ON mine.workspace_id = theirs.workspace_id AND mine.user_id = $1
		WHERE u.username ILIKE $2 OR u.display_name ILIKE $2 OR u.email ILIKE $2
		ORDER BY u.username
		LIMIT $3`

	return retryOnce(ctx, func(ctx context.Context) ([]models.User, error) {
		return s.list(ctx, "search users", sql, actorID, "%"+escapeLike(query)+"%", limit)
	})
}

var _ repository.UserRepository = (*UserStore)(nil)

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

type DirectMessageStore struct {
	pool *pgxpool.Pool
}

func NewDirectMessageStore(pool *pgxpool.Pool) *DirectMessageStore {
	return &DirectMessageStore{pool: pool}
}

const directColumns = `id, sender_id, recipient_id, content, read, read_at, created_at, updated_at`

func scanDirect(row scanner) (*models.DirectMessage, error) {
	var dm models.DirectMessage
	err := row.Scan(
		&dm.ID,
		&dm.SenderID,
		&dm.RecipientID,
		&dm.Content,
		&dm.Read,
		&dm.ReadAt,
		&dm.CreatedAt,
		&dm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dm, nil
}

func (s *DirectMessageStore) Create(ctx context.Context, dm *models.DirectMessage) (*models.DirectMessage, error) {
	created, err := scanDirect(s.pool.QueryRow(ctx, `
		INSERT INTO direct_messages (sender_id, recipient_id, content)
		VALUES ($1, $2, $3)
		RETURNING `+directColumns,
		dm.SenderID, dm.RecipientID, dm.Content,
	))
	if err != nil {
		return nil, fmt.Errorf("insert direct message: %w", err)
	}
	return created, nil
}

func (s *DirectMessageStore) GetByID(ctx context.Context, id int64) (*models.DirectMessage, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.DirectMessage, error) {
		dm, err := scanDirect(s.pool.QueryRow(ctx, `SELECT `+directColumns+` FROM direct_messages WHERE id = $1`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get direct message: %w", err)
		}
		return dm, nil
	})
}

func (s *DirectMessageStore) ListConversation(ctx context.Context, a, b uuid.UUID, before int64, limit int) ([]models.DirectMessage, error) {
	// Cursor pagination: before=0 is the latest page, before=N continues
	// below id N.
	query := `
		SELECT ` + directColumns + `
		FROM direct_messages
		WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		  AND ($3::bigint = 0 OR id < $3)
		ORDER BY id DESC
		LIMIT $4`

	return retryOnce(ctx, func(ctx context.Context) ([]models.DirectMessage, error) {
		rows, err := s.pool.Query(ctx, query, a, b, before, limit)
		if err != nil {
			return nil, fmt.Errorf("list conversation: %w", err)
		}
		defer rows.Close()

		out := make([]models.DirectMessage, 0)
		for rows.Next() {
			dm, err := scanDirect(rows)
			if err != nil {
				return nil, fmt.Errorf("scan direct message: %w", err)
			}
			out = append(out, *dm)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate conversation: %w", err)
		}
		return out, nil
	})
}

func (s *DirectMessageStore) ListPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT partner FROM (
			SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS partner,
			       max(id) AS latest
			FROM direct_messages
			WHERE sender_id = $1 OR recipient_id = $1
			GROUP BY 1
		) p
		ORDER BY latest DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversation partners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect conversation partners: %w", err)
	}
	if ids == nil {
		ids = make([]uuid.UUID, 0)
	}
	return ids, nil
}

func (s *DirectMessageStore) MarkRead(ctx context.Context, id int64, at time.Time) (*models.DirectMessage, error) {
	// COALESCE keeps the first read_at if the message was already read.
	dm, err := scanDirect(s.pool.QueryRow(ctx, `
		UPDATE direct_messages
		SET read = true, read_at = COALESCE(read_at, $2), updated_at = now()
		WHERE id = $1
		RETURNING `+directColumns, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark direct message read: %w", err)
	}
	return dm, nil
}

func (s *DirectMessageStore) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return retryOnce(ctx, func(ctx context.Context) (int, error) {
		var n int
		err := s.pool.QueryRow(ctx,
			`SELECT count(*) FROM direct_messages WHERE recipient_id = $1 AND NOT read`, recipientID,
		).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count unread direct messages: %w", err)
		}
		return n, nil
	})
}

var _ repository.DirectMessageRepository = (*DirectMessageStore)(nil)

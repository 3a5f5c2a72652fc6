package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, channel_id, sender_id, content, parent_id, edited, pinned, created_at, updated_at`

func scanMessage(row scanner) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.SenderID,
		&msg.Content,
		&msg.ParentID,
		&msg.Edited,
		&msg.Pinned,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectMessages(rows pgx.Rows, op string) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return messages, nil
}

// oneMessage maps no rows to nil, nil.
func oneMessage(row pgx.Row, op string) (*models.Message, error) {
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return msg, nil
}

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	// bigserial id and timestamps come from Postgres.
	query := `
		INSERT INTO messages (channel_id, sender_id, content, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + messageColumns

	created, err := scanMessage(s.pool.QueryRow(ctx, query, msg.ChannelID, msg.SenderID, msg.Content, msg.ParentID))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.Message, error) {
		return oneMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID), "get message")
	})
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error) {
	return oneMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET content = $2, edited = true, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, messageID, content), "update message")
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	return oneMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET pinned = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, messageID, pinned), "pin message")
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete message: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Replies go with their root through ON DELETE CASCADE; their
	// reactions and attachments have no FK and are removed explicitly.
	for _, table := range []string{"reactions", "attachments"} {
		_, err := tx.Exec(ctx, `
			DELETE FROM `+table+`
			WHERE target_kind = 'message'
			  AND target_id IN (SELECT id FROM messages WHERE id = $1 OR parent_id = $1)`,
			messageID)
		if err != nil {
			return fmt.Errorf("delete message %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete message: %w", err)
	}
	return nil
}

func (s *MessageStore) ListTopLevel(ctx context.Context, channelID uuid.UUID, offset, limit int) ([]models.Message, error) {
	// Page-numbered rather than cursor-based: pages are what the cache keys
	// on (channel_messages:{id}:page:{n}), and a new message invalidates
	// every page of the channel anyway.
	return retryOnce(ctx, func(ctx context.Context) ([]models.Message, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE channel_id = $1 AND parent_id IS NULL
			ORDER BY created_at DESC, id DESC
			OFFSET $2 LIMIT $3`, channelID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		return collectMessages(rows, "iterate messages")
	})
}

func (s *MessageStore) ListReplies(ctx context.Context, parentID int64) ([]models.Message, error) {
	return retryOnce(ctx, func(ctx context.Context) ([]models.Message, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE parent_id = $1
			ORDER BY created_at ASC, id ASC`, parentID)
		if err != nil {
			return nil, fmt.Errorf("list replies: %w", err)
		}
		return collectMessages(rows, "iterate replies")
	})
}

func (s *MessageStore) CountReplies(ctx context.Context, parentIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(parentIDs) == 0 {
		return counts, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT parent_id, count(*)
		FROM messages
		WHERE parent_id = ANY($1)
		GROUP BY parent_id`, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("count replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan reply count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reply counts: %w", err)
	}
	return counts, nil
}

func (s *MessageStore) Search(ctx context.Context, channelIDs []uuid.UUID, query string, limit int) ([]models.Message, error) {
	if len(channelIDs) == 0 {
		return make([]models.Message, 0), nil
	}
	return retryOnce(ctx, func(ctx context.Context) ([]models.Message, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE channel_id = ANY($1) AND content ILIKE $2
			ORDER BY created_at DESC
			LIMIT $3`, channelIDs, "%"+escapeLike(query)+"%", limit)
		if err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}
		return collectMessages(rows, "iterate search results")
	})
}

func (s *MessageStore) CountUnread(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cm.channel_id, count(m.id)
		FROM channel_members cm
		JOIN messages m
		  ON m.channel_id = cm.channel_id
		 AND m.sender_id <> cm.user_id
		 AND m.created_at > COALESCE(cm.last_read_at, cm.joined_at)
		WHERE cm.user_id = $1
		GROUP BY cm.channel_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}
	return counts, nil
}

var _ repository.MessageRepository = (*MessageStore)(nil)

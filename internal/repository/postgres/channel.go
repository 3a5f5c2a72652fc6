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

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

const channelColumns = `id, workspace_id, name, slug, description, type, created_by, created_at, updated_at`

func scanChannel(row scanner, extra ...any) (*models.Channel, error) {
	var ch models.Channel
	dest := append([]any{
		&ch.ID,
		&ch.WorkspaceID,
		&ch.Name,
		&ch.Slug,
		&ch.Description,
		&ch.Type,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChannelStore) Create(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (workspace_id, name, slug, description, type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + channelColumns

	created, err := scanChannel(s.pool.QueryRow(ctx, query,
		ch.WorkspaceID, ch.Name, ch.Slug, ch.Description, ch.Type, ch.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", mapInsertErr(err))
	}
	return created, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.Channel, error) {
		ch, err := scanChannel(s.pool.QueryRow(ctx,
			`SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get channel: %w", err)
		}
		return ch, nil
	})
}

func (s *ChannelStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.ChannelSummary, error) {
	query := `
		SELECT ` + prefixed("c", channelColumns) + `,
			(SELECT count(*) FROM channel_members m WHERE m.channel_id = c.id)
		FROM channels c
		WHERE c.workspace_id = $1
		ORDER BY c.name`

	return retryOnce(ctx, func(ctx context.Context) ([]models.ChannelSummary, error) {
		rows, err := s.pool.Query(ctx, query, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		defer rows.Close()

		channels := make([]models.ChannelSummary, 0)
		for rows.Next() {
			var members int
			ch, err := scanChannel(rows, &members)
			if err != nil {
				return nil, fmt.Errorf("scan channel: %w", err)
			}
			channels = append(channels, models.ChannelSummary{Channel: *ch, MemberCount: members})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate channels: %w", err)
		}
		return channels, nil
	})
}

var _ repository.ChannelRepository = (*ChannelStore)(nil)

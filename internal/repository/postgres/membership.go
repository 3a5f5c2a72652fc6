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

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) AddMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	// ON CONFLICT DO NOTHING makes "join channel" idempotent. RowsAffected
	// tells the caller whether this call was the one that joined.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING`,
		channelID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MembershipStore) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	// One statement for the whole back-fill instead of a row per member.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT (channel_id, user_id) DO NOTHING`,
		channelID, userIDs,
	)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	return nil
}

func (s *MembershipStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM channel_members
		WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *MembershipStore) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.ChannelMember, error) {
		var m models.ChannelMember
		err := s.pool.QueryRow(ctx, `
			SELECT channel_id, user_id, joined_at, last_read_at
			FROM channel_members
			WHERE channel_id = $1 AND user_id = $2`,
			channelID, userID,
		).Scan(&m.ChannelID, &m.UserID, &m.JoinedAt, &m.LastReadAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get channel member: %w", err)
		}
		return &m, nil
	})
}

func (s *MembershipStore) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	// EXISTS stops at the first match; this runs before every channel read
	// and message send.
	return retryOnce(ctx, func(ctx context.Context) (bool, error) {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM channel_members
				WHERE channel_id = $1 AND user_id = $2
			)`, channelID, userID).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("check membership: %w", err)
		}
		return exists, nil
	})
}

func (s *MembershipStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	return retryOnce(ctx, func(ctx context.Context) ([]models.ChannelMember, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT channel_id, user_id, joined_at, last_read_at
			FROM channel_members
			WHERE channel_id = $1
			ORDER BY joined_at`, channelID)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		defer rows.Close()

		members := make([]models.ChannelMember, 0)
		for rows.Next() {
			var m models.ChannelMember
			if err := rows.Scan(&m.ChannelID, &m.UserID, &m.JoinedAt, &m.LastReadAt); err != nil {
				return nil, fmt.Errorf("scan member: %w", err)
			}
			members = append(members, m)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate members: %w", err)
		}
		return members, nil
	})
}

func (s *MembershipStore) ListChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return retryOnce(ctx, func(ctx context.Context) ([]uuid.UUID, error) {
		rows, err := s.pool.Query(ctx, `SELECT channel_id FROM channel_members WHERE user_id = $1`, userID)
		if err != nil {
			return nil, fmt.Errorf("list member channels: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return nil, fmt.Errorf("collect member channels: %w", err)
		}
		if ids == nil {
			ids = make([]uuid.UUID, 0)
		}
		return ids, nil
	})
}

func (s *MembershipStore) MarkRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error {
	// GREATEST keeps the marker from moving backwards on out-of-order calls.
	_, err := s.pool.Exec(ctx, `
		UPDATE channel_members
		SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3)
		WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

var _ repository.MembershipRepository = (*MembershipStore)(nil)

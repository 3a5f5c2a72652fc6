package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type ReactionStore struct {
	pool *pgxpool.Pool
}

func NewReactionStore(pool *pgxpool.Pool) *ReactionStore {
	return &ReactionStore{pool: pool}
}

func (s *ReactionStore) Add(ctx context.Context, r *models.Reaction) (bool, error) {
	// The unique (target_kind, target_id, user_id, emoji) constraint decides
	// the toggle: zero rows inserted means the reaction was already there.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reactions (target_kind, target_id, user_id, emoji)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (target_kind, target_id, user_id, emoji) DO NOTHING`,
		r.Target.Kind, r.Target.ID, r.UserID, r.Emoji,
	)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ReactionStore) Remove(ctx context.Context, target models.Target, userID uuid.UUID, emoji string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM reactions
		WHERE target_kind = $1 AND target_id = $2 AND user_id = $3 AND emoji = $4`,
		target.Kind, target.ID, userID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ReactionStore) ListFor(ctx context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Reaction, error) {
	out := make(map[int64][]models.Reaction)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, target_kind, target_id, user_id, emoji, created_at
		FROM reactions
		WHERE target_kind = $1 AND target_id = ANY($2)
		ORDER BY id`, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.ID, &r.Target.Kind, &r.Target.ID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out[r.Target.ID] = append(out[r.Target.ID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

type AttachmentStore struct {
	pool *pgxpool.Pool
}

func NewAttachmentStore(pool *pgxpool.Pool) *AttachmentStore {
	return &AttachmentStore{pool: pool}
}

const attachmentColumns = `id, target_kind, target_id, filename, file_type, file_size, storage_key, uploaded_by, created_at`

func scanAttachment(row scanner) (*models.Attachment, error) {
	var a models.Attachment
	err := row.Scan(
		&a.ID,
		&a.Target.Kind,
		&a.Target.ID,
		&a.Filename,
		&a.FileType,
		&a.FileSize,
		&a.StorageKey,
		&a.UploadedBy,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AttachmentStore) Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	created, err := scanAttachment(s.pool.QueryRow(ctx, `
		INSERT INTO attachments (target_kind, target_id, filename, file_type, file_size, storage_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+attachmentColumns,
		a.Target.Kind, a.Target.ID, a.Filename, a.FileType, a.FileSize, a.StorageKey, a.UploadedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return created, nil
}

func (s *AttachmentStore) ListFor(ctx context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Attachment, error) {
	out := make(map[int64][]models.Attachment)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE target_kind = $1 AND target_id = ANY($2)
		ORDER BY id`, kind, ids)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out[a.Target.ID] = append(out[a.Target.ID], *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

func (s *AttachmentStore) ListByUploader(ctx context.Context, userID uuid.UUID) ([]models.Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE uploaded_by = $1
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := make([]models.Attachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

var (
	_ repository.ReactionRepository   = (*ReactionStore)(nil)
	_ repository.AttachmentRepository = (*AttachmentStore)(nil)
)

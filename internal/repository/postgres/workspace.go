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

type WorkspaceStore struct {
	pool *pgxpool.Pool
}

func NewWorkspaceStore(pool *pgxpool.Pool) *WorkspaceStore {
	return &WorkspaceStore{pool: pool}
}

const workspaceColumns = `id, name, slug, description, owner_id, created_at, updated_at`

func scanWorkspace(row scanner, extra ...any) (*models.Workspace, error) {
	var ws models.Workspace
	dest := append([]any{
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.Description,
		&ws.OwnerID,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Create inserts the workspace and the owner's membership in one transaction.
// A workspace without its owner row would fail every authorization check.
func (s *WorkspaceStore) Create(ctx context.Context, ws *models.Workspace) (*models.Workspace, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create workspace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	created, err := scanWorkspace(tx.QueryRow(ctx, `
		INSERT INTO workspaces (name, slug, description, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+workspaceColumns,
		ws.Name, ws.Slug, ws.Description, ws.OwnerID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert workspace: %w", mapInsertErr(err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES ($1, $2, 'owner', $3)`,
		created.ID, created.OwnerID, created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workspace owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create workspace: %w", err)
	}
	return created, nil
}

func (s *WorkspaceStore) GetByID(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.Workspace, error) {
		ws, err := scanWorkspace(s.pool.QueryRow(ctx,
			`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, workspaceID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get workspace: %w", err)
		}
		return ws, nil
	})
}

func (s *WorkspaceStore) Update(ctx context.Context, workspaceID uuid.UUID, name, description string) (*models.Workspace, error) {
	ws, err := scanWorkspace(s.pool.QueryRow(ctx, `
		UPDATE workspaces SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+workspaceColumns,
		workspaceID, name, description,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	return ws, nil
}

func (s *WorkspaceStore) Delete(ctx context.Context, workspaceID uuid.UUID) error {
	// Reactions and attachments have no FK to messages (they are
	// polymorphic), so clear them before the cascade removes the messages.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete workspace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, table := range []string{"reactions", "attachments"} {
		_, err := tx.Exec(ctx, `
			DELETE FROM `+table+`
			WHERE target_kind = 'message' AND target_id IN (
				SELECT m.id FROM messages m
				JOIN channels c ON c.id = m.channel_id
				WHERE c.workspace_id = $1
			)`, workspaceID)
		if err != nil {
			return fmt.Errorf("delete workspace %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, workspaceID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete workspace: %w", err)
	}
	return nil
}

func (s *WorkspaceStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WorkspaceSummary, error) {
	query := `
		SELECT ` + prefixed("w", workspaceColumns) + `,
			(SELECT count(*) FROM workspace_members x WHERE x.workspace_id = w.id),
			(SELECT count(*) FROM channels c WHERE c.workspace_id = w.id)
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY m.joined_at`

	return retryOnce(ctx, func(ctx context.Context) ([]models.WorkspaceSummary, error) {
		rows, err := s.pool.Query(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("list workspaces: %w", err)
		}
		defer rows.Close()

		out := make([]models.WorkspaceSummary, 0)
		for rows.Next() {
			var members, channels int
			ws, err := scanWorkspace(rows, &members, &channels)
			if err != nil {
				return nil, fmt.Errorf("scan workspace: %w", err)
			}
			out = append(out, models.WorkspaceSummary{Workspace: *ws, MemberCount: members, ChannelCount: channels})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate workspaces: %w", err)
		}
		return out, nil
	})
}

func (s *WorkspaceStore) GetMember(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	return retryOnce(ctx, func(ctx context.Context) (*models.WorkspaceMember, error) {
		var m models.WorkspaceMember
		err := s.pool.QueryRow(ctx, `
			SELECT workspace_id, user_id, role, joined_at
			FROM workspace_members
			WHERE workspace_id = $1 AND user_id = $2`,
			workspaceID, userID,
		).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("get workspace member: %w", err)
		}
		return &m, nil
	})
}

func (s *WorkspaceStore) AddMember(ctx context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	// No ON CONFLICT here: adding an existing member is reported to the
	// caller as ALREADY_EXISTS, unlike channel joins which are idempotent.
	var m models.WorkspaceMember
	err := s.pool.QueryRow(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING workspace_id, user_id, role, joined_at`,
		workspaceID, userID, role,
	).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("add workspace member: %w", mapInsertErr(err))
	}
	return &m, nil
}

func (s *WorkspaceStore) RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin remove workspace member: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		DELETE FROM channel_members
		WHERE user_id = $2 AND channel_id IN (SELECT id FROM channels WHERE workspace_id = $1)`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove channel memberships: %w", err)
	}
	_, err = tx.Exec(ctx, `DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("remove workspace member: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remove workspace member: %w", err)
	}
	return nil
}

func (s *WorkspaceStore) UpdateMemberRole(ctx context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	err := s.pool.QueryRow(ctx, `
		UPDATE workspace_members SET role = $3
		WHERE workspace_id = $1 AND user_id = $2
		RETURNING workspace_id, user_id, role, joined_at`,
		workspaceID, userID, role,
	).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return &m, nil
}

func (s *WorkspaceStore) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]models.WorkspaceMember, error) {
	return retryOnce(ctx, func(ctx context.Context) ([]models.WorkspaceMember, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT workspace_id, user_id, role, joined_at
			FROM workspace_members
			WHERE workspace_id = $1
			ORDER BY joined_at`, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("list workspace members: %w", err)
		}
		defer rows.Close()

		members := make([]models.WorkspaceMember, 0)
		for rows.Next() {
			var m models.WorkspaceMember
			if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
				return nil, fmt.Errorf("scan workspace member: %w", err)
			}
			members = append(members, m)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate workspace members: %w", err)
		}
		return members, nil
	})
}

var _ repository.WorkspaceRepository = (*WorkspaceStore)(nil)

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type WorkspaceStore struct{ db *DB }

func (s *WorkspaceStore) Create(_ context.Context, ws *models.Workspace) (*models.Workspace, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.workspaces {
		if existing.Slug == ws.Slug {
			return nil, repository.ErrDuplicate
		}
	}
	row := *ws
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = s.db.stamp()
	row.UpdatedAt = row.CreatedAt
	s.db.workspaces[row.ID] = row
	s.db.workspaceMembers[memberKey{row.ID, row.OwnerID}] = models.WorkspaceMember{
		WorkspaceID: row.ID,
		UserID:      row.OwnerID,
		Role:        models.RoleOwner,
		JoinedAt:    row.CreatedAt,
	}
	return &row, nil
}

func (s *WorkspaceStore) GetByID(_ context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ws, ok := s.db.workspaces[workspaceID]
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

func (s *WorkspaceStore) Update(_ context.Context, workspaceID uuid.UUID, name, description string) (*models.Workspace, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ws, ok := s.db.workspaces[workspaceID]
	if !ok {
		return nil, nil
	}
	ws.Name = name
	ws.Description = description
	ws.UpdatedAt = s.db.stamp()
	s.db.workspaces[workspaceID] = ws
	return &ws, nil
}

func (s *WorkspaceStore) Delete(_ context.Context, workspaceID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	delete(s.db.workspaces, workspaceID)
	for k := range s.db.workspaceMembers {
		if k.parent == workspaceID {
			delete(s.db.workspaceMembers, k)
		}
	}
	for id, ch := range s.db.channels {
		if ch.WorkspaceID == workspaceID {
			s.db.deleteChannelLocked(id)
		}
	}
	return nil
}

// deleteChannelLocked cascades a channel removal. Caller holds the write lock.
func (db *DB) deleteChannelLocked(channelID uuid.UUID) {
	delete(db.channels, channelID)
	for k := range db.channelMembers {
		if k.parent == channelID {
			delete(db.channelMembers, k)
		}
	}
	for id, m := range db.messages {
		if m.ChannelID == channelID {
			db.deleteMessageLocked(id)
		}
	}
}

func (s *WorkspaceStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.WorkspaceSummary, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	type joined struct {
		summary  models.WorkspaceSummary
		joinedAt int64
	}
	rows := make([]joined, 0)
	for k, m := range s.db.workspaceMembers {
		if k.user != userID {
			continue
		}
		rows = append(rows, joined{
			summary:  s.db.summaryLocked(s.db.workspaces[k.parent]),
			joinedAt: m.JoinedAt.UnixNano(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].joinedAt < rows[j].joinedAt })

	out := make([]models.WorkspaceSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary
	}
	return out, nil
}

func (db *DB) summaryLocked(ws models.Workspace) models.WorkspaceSummary {
	sum := models.WorkspaceSummary{Workspace: ws}
	for k := range db.workspaceMembers {
		if k.parent == ws.ID {
			sum.MemberCount++
		}
	}
	for _, ch := range db.channels {
		if ch.WorkspaceID == ws.ID {
			sum.ChannelCount++
		}
	}
	return sum
}

func (s *WorkspaceStore) GetMember(_ context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	m, ok := s.db.workspaceMembers[memberKey{workspaceID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *WorkspaceStore) AddMember(_ context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := memberKey{workspaceID, userID}
	if _, ok := s.db.workspaceMembers[key]; ok {
		return nil, repository.ErrDuplicate
	}
	m := models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    s.db.stamp(),
	}
	s.db.workspaceMembers[key] = m
	return &m, nil
}

func (s *WorkspaceStore) RemoveMember(_ context.Context, workspaceID, userID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	delete(s.db.workspaceMembers, memberKey{workspaceID, userID})
	for id, ch := range s.db.channels {
		if ch.WorkspaceID == workspaceID {
			delete(s.db.channelMembers, memberKey{id, userID})
		}
	}
	return nil
}

func (s *WorkspaceStore) UpdateMemberRole(_ context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := memberKey{workspaceID, userID}
	m, ok := s.db.workspaceMembers[key]
	if !ok {
		return nil, nil
	}
	m.Role = role
	s.db.workspaceMembers[key] = m
	return &m, nil
}

func (s *WorkspaceStore) ListMembers(_ context.Context, workspaceID uuid.UUID) ([]models.WorkspaceMember, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.WorkspaceMember, 0)
	for k, m := range s.db.workspaceMembers {
		if k.parent == workspaceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

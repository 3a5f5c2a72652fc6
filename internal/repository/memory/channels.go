package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type ChannelStore struct{ db *DB }

func (s *ChannelStore) Create(_ context.Context, ch *models.Channel) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.channels {
		if existing.WorkspaceID == ch.WorkspaceID && existing.Slug == ch.Slug {
			return nil, repository.ErrDuplicate
		}
	}
	row := *ch
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = s.db.stamp()
	row.UpdatedAt = row.CreatedAt
	s.db.channels[row.ID] = row
	return &row, nil
}

func (s *ChannelStore) GetByID(_ context.Context, channelID uuid.UUID) (*models.Channel, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	ch, ok := s.db.channels[channelID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *ChannelStore) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]models.ChannelSummary, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.ChannelSummary, 0)
	for _, ch := range s.db.channels {
		if ch.WorkspaceID != workspaceID {
			continue
		}
		sum := models.ChannelSummary{Channel: ch}
		for k := range s.db.channelMembers {
			if k.parent == ch.ID {
				sum.MemberCount++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type MembershipStore struct{ db *DB }

func (s *MembershipStore) AddMember(_ context.Context, channelID, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.addChannelMemberLocked(channelID, userID), nil
}

func (db *DB) addChannelMemberLocked(channelID, userID uuid.UUID) bool {
	key := memberKey{channelID, userID}
	if _, ok := db.channelMembers[key]; ok {
		return false
	}
	db.channelMembers[key] = models.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		JoinedAt:  db.stamp(),
	}
	return true
}

func (s *MembershipStore) AddMembers(_ context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, id := range userIDs {
		s.db.addChannelMemberLocked(channelID, id)
	}
	return nil
}

func (s *MembershipStore) RemoveMember(_ context.Context, channelID, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := memberKey{channelID, userID}
	if _, ok := s.db.channelMembers[key]; !ok {
		return false, nil
	}
	delete(s.db.channelMembers, key)
	return true, nil
}

func (s *MembershipStore) GetMember(_ context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	m, ok := s.db.channelMembers[memberKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MembershipStore) IsMember(_ context.Context, channelID, userID uuid.UUID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	_, ok := s.db.channelMembers[memberKey{channelID, userID}]
	return ok, nil
}

func (s *MembershipStore) ListMembers(_ context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.ChannelMember, 0)
	for k, m := range s.db.channelMembers {
		if k.parent == channelID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *MembershipStore) ListChannelIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]uuid.UUID, 0)
	for k := range s.db.channelMembers {
		if k.user == userID {
			out = append(out, k.parent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MembershipStore) MarkRead(_ context.Context, channelID, userID uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := memberKey{channelID, userID}
	m, ok := s.db.channelMembers[key]
	if !ok {
		return nil
	}
	// The read marker never precedes rows already written.
	if ts := s.db.stamp(); ts.After(at) {
		at = ts
	}
	m.LastReadAt = &at
	s.db.channelMembers[key] = m
	return nil
}

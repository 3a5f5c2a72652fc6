package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type UserStore struct{ db *DB }

func (s *UserStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return nil, repository.ErrDuplicate
		}
	}
	row := *u
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = models.StatusOffline
	}
	row.CreatedAt = s.db.stamp()
	row.LastSeen = row.CreatedAt
	s.db.users[row.ID] = row
	return &row, nil
}

func (s *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, u := range s.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *UserStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.db.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *UserStore) UpdateProfile(_ context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	s.db.users[userID] = u
	return &u, nil
}

func (s *UserStore) UpdateStatus(_ context.Context, userID uuid.UUID, status models.UserStatus, seenAt time.Time) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	u.Status = status
	u.LastSeen = seenAt
	s.db.users[userID] = u
	return &u, nil
}

func (s *UserStore) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if u, ok := s.db.users[userID]; ok {
		u.PasswordHash = passwordHash
		s.db.users[userID] = u
	}
	return nil
}

func (s *UserStore) SearchVisible(_ context.Context, actorID uuid.UUID, query string, limit int) ([]models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	shared := make(map[uuid.UUID]bool)
	for k := range s.db.workspaceMembers {
		if k.user == actorID {
			shared[k.parent] = true
		}
	}
	visible := make(map[uuid.UUID]bool)
	for k := range s.db.workspaceMembers {
		if shared[k.parent] {
			visible[k.user] = true
		}
	}

	out := make([]models.User, 0)
	for id := range visible {
		u := s.db.users[id]
		if containsFold(u.Username, query) || containsFold(u.DisplayName, query) || containsFold(u.Email, query) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return page(out, 0, limit), nil
}

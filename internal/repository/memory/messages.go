package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
)

type MessageStore struct{ db *DB }

func (s *MessageStore) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row := *msg
	row.ID = s.db.nextID()
	row.CreatedAt = s.db.stamp()
	row.UpdatedAt = row.CreatedAt
	s.db.messages[row.ID] = row
	return &row, nil
}

func (s *MessageStore) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	m, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MessageStore) UpdateContent(_ context.Context, messageID int64, content string) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	m.Content = content
	m.Edited = true
	m.UpdatedAt = s.db.stamp()
	s.db.messages[messageID] = m
	return &m, nil
}

func (s *MessageStore) SetPinned(_ context.Context, messageID int64, pinned bool) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	m.Pinned = pinned
	m.UpdatedAt = s.db.stamp()
	s.db.messages[messageID] = m
	return &m, nil
}

func (s *MessageStore) Delete(_ context.Context, messageID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.deleteMessageLocked(messageID)
	return nil
}

// deleteMessageLocked removes a message with its replies, reactions and
// attachments. Caller holds the write lock.
func (db *DB) deleteMessageLocked(messageID int64) {
	delete(db.messages, messageID)
	for id, m := range db.messages {
		if m.ParentID != nil && *m.ParentID == messageID {
			db.deleteMessageLocked(id)
		}
	}
	target := models.MessageTarget(messageID)
	for k := range db.reactions {
		if k.target == target {
			delete(db.reactions, k)
		}
	}
	for id, a := range db.attachments {
		if a.Target == target {
			delete(db.attachments, id)
		}
	}
}

func (s *MessageStore) ListTopLevel(_ context.Context, channelID uuid.UUID, offset, limit int) ([]models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	all := make([]models.Message, 0)
	for _, m := range s.db.messages {
		if m.ChannelID == channelID && m.ParentID == nil {
			all = append(all, m)
		}
	}
	sortMessagesDesc(all)
	return page(all, offset, limit), nil
}

func (s *MessageStore) ListReplies(_ context.Context, parentID int64) ([]models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.Message, 0)
	for _, m := range s.db.messages {
		if m.ParentID != nil && *m.ParentID == parentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MessageStore) CountReplies(_ context.Context, parentIDs []int64) (map[int64]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	wanted := make(map[int64]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id] = true
	}
	out := make(map[int64]int)
	for _, m := range s.db.messages {
		if m.ParentID != nil && wanted[*m.ParentID] {
			out[*m.ParentID]++
		}
	}
	return out, nil
}

func (s *MessageStore) Search(_ context.Context, channelIDs []uuid.UUID, query string, limit int) ([]models.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	in := make(map[uuid.UUID]bool, len(channelIDs))
	for _, id := range channelIDs {
		in[id] = true
	}
	out := make([]models.Message, 0)
	for _, m := range s.db.messages {
		if in[m.ChannelID] && containsFold(m.Content, query) {
			out = append(out, m)
		}
	}
	sortMessagesDesc(out)
	return page(out, 0, limit), nil
}

func (s *MessageStore) CountUnread(_ context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make(map[uuid.UUID]int)
	for k, member := range s.db.channelMembers {
		if k.user != userID {
			continue
		}
		since := member.JoinedAt
		if member.LastReadAt != nil {
			since = *member.LastReadAt
		}
		for _, m := range s.db.messages {
			if m.ChannelID == k.parent && m.SenderID != userID && m.CreatedAt.After(since) {
				out[k.parent]++
			}
		}
	}
	return out, nil
}

type DirectMessageStore struct{ db *DB }

func (s *DirectMessageStore) Create(_ context.Context, dm *models.DirectMessage) (*models.DirectMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row := *dm
	row.ID = s.db.nextID()
	row.CreatedAt = s.db.stamp()
	row.UpdatedAt = row.CreatedAt
	s.db.directMessages[row.ID] = row
	return &row, nil
}

func (s *DirectMessageStore) GetByID(_ context.Context, id int64) (*models.DirectMessage, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	dm, ok := s.db.directMessages[id]
	if !ok {
		return nil, nil
	}
	return &dm, nil
}

func (s *DirectMessageStore) ListConversation(_ context.Context, a, b uuid.UUID, before int64, limit int) ([]models.DirectMessage, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.DirectMessage, 0)
	for _, dm := range s.db.directMessages {
		between := (dm.SenderID == a && dm.RecipientID == b) || (dm.SenderID == b && dm.RecipientID == a)
		if between && (before == 0 || dm.ID < before) {
			out = append(out, dm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, 0, limit), nil
}

func (s *DirectMessageStore) ListPartners(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	latest := make(map[uuid.UUID]int64)
	for _, dm := range s.db.directMessages {
		var partner uuid.UUID
		switch userID {
		case dm.SenderID:
			partner = dm.RecipientID
		case dm.RecipientID:
			partner = dm.SenderID
		default:
			continue
		}
		if dm.ID > latest[partner] {
			latest[partner] = dm.ID
		}
	}
	out := make([]uuid.UUID, 0, len(latest))
	for p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return latest[out[i]] > latest[out[j]] })
	return out, nil
}

func (s *DirectMessageStore) MarkRead(_ context.Context, id int64, at time.Time) (*models.DirectMessage, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	dm, ok := s.db.directMessages[id]
	if !ok {
		return nil, nil
	}
	if !dm.Read {
		dm.Read = true
		dm.ReadAt = &at
		s.db.directMessages[id] = dm
	}
	return &dm, nil
}

func (s *DirectMessageStore) CountUnread(_ context.Context, recipientID uuid.UUID) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	n := 0
	for _, dm := range s.db.directMessages {
		if dm.RecipientID == recipientID && !dm.Read {
			n++
		}
	}
	return n, nil
}

type ReactionStore struct{ db *DB }

func (s *ReactionStore) Add(_ context.Context, r *models.Reaction) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := reactionKey{r.Target, r.UserID, r.Emoji}
	if _, ok := s.db.reactions[key]; ok {
		return false, nil
	}
	row := *r
	row.ID = s.db.nextID()
	row.CreatedAt = s.db.stamp()
	s.db.reactions[key] = row
	return true, nil
}

func (s *ReactionStore) Remove(_ context.Context, target models.Target, userID uuid.UUID, emoji string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := reactionKey{target, userID, emoji}
	if _, ok := s.db.reactions[key]; !ok {
		return false, nil
	}
	delete(s.db.reactions, key)
	return true, nil
}

func (s *ReactionStore) ListFor(_ context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Reaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64][]models.Reaction)
	for _, r := range s.db.reactions {
		if r.Target.Kind == kind && wanted[r.Target.ID] {
			out[r.Target.ID] = append(out[r.Target.ID], r)
		}
	}
	for id := range out {
		rs := out[id]
		sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	}
	return out, nil
}

type AttachmentStore struct{ db *DB }

func (s *AttachmentStore) Create(_ context.Context, a *models.Attachment) (*models.Attachment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row := *a
	row.ID = s.db.nextID()
	row.CreatedAt = s.db.stamp()
	s.db.attachments[row.ID] = row
	return &row, nil
}

func (s *AttachmentStore) ListFor(_ context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Attachment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64][]models.Attachment)
	for _, a := range s.db.attachments {
		if a.Target.Kind == kind && wanted[a.Target.ID] {
			out[a.Target.ID] = append(out[a.Target.ID], a)
		}
	}
	for id := range out {
		as := out[id]
		sort.Slice(as, func(i, j int) bool { return as[i].ID < as[j].ID })
	}
	return out, nil
}

func (s *AttachmentStore) ListByUploader(_ context.Context, userID uuid.UUID) ([]models.Attachment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]models.Attachment, 0)
	for _, a := range s.db.attachments {
		if a.UploadedBy == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Package memory is an in-process system of record implementing every
// repository interface. It enforces the same uniqueness rules as the
// Postgres schema and is used by tests and by DATABASE_URL=memory://.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type memberKey struct {
	parent uuid.UUID
	user   uuid.UUID
}

type reactionKey struct {
	target models.Target
	user   uuid.UUID
	emoji  string
}

// DB holds every table behind one lock.
type DB struct {
	mu  sync.RWMutex
	now func() time.Time

	users            map[uuid.UUID]models.User
	workspaces       map[uuid.UUID]models.Workspace
	workspaceMembers map[memberKey]models.WorkspaceMember
	channels         map[uuid.UUID]models.Channel
	channelMembers   map[memberKey]models.ChannelMember
	messages         map[int64]models.Message
	directMessages   map[int64]models.DirectMessage
	reactions        map[reactionKey]models.Reaction
	attachments      map[int64]models.Attachment

	seq  int64
	last time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces time.Now for created_at and similar columns.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New returns an empty database.
func New(opts ...Option) *DB {
	db := &DB{
		now:              time.Now,
		users:            make(map[uuid.UUID]models.User),
		workspaces:       make(map[uuid.UUID]models.Workspace),
		workspaceMembers: make(map[memberKey]models.WorkspaceMember),
		channels:         make(map[uuid.UUID]models.Channel),
		channelMembers:   make(map[memberKey]models.ChannelMember),
		messages:         make(map[int64]models.Message),
		directMessages:   make(map[int64]models.DirectMessage),
		reactions:        make(map[reactionKey]models.Reaction),
		attachments:      make(map[int64]models.Attachment),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *DB) Users() repository.UserRepository                   { return &UserStore{db} }
func (db *DB) Workspaces() repository.WorkspaceRepository         { return &WorkspaceStore{db} }
func (db *DB) Channels() repository.ChannelRepository             { return &ChannelStore{db} }
func (db *DB) Memberships() repository.MembershipRepository       { return &MembershipStore{db} }
func (db *DB) Messages() repository.MessageRepository             { return &MessageStore{db} }
func (db *DB) DirectMessages() repository.DirectMessageRepository { return &DirectMessageStore{db} }
func (db *DB) Reactions() repository.ReactionRepository           { return &ReactionStore{db} }
func (db *DB) Attachments() repository.AttachmentRepository       { return &AttachmentStore{db} }

// nextID hands out bigserial-style ids shared by every int64 table.
// Caller holds the write lock.
func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

// stamp returns a strictly increasing timestamp so created_at ordering is
// deterministic even when the clock does not move between inserts.
// Caller holds the write lock.
func (db *DB) stamp() time.Time {
	t := db.now()
	if !t.After(db.last) {
		t = db.last.Add(time.Microsecond)
	}
	db.last = t
	return t
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func sortMessagesDesc(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return make([]T, 0)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

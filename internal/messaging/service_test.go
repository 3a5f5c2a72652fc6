package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/kvstore"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/ratelimit"
	"github.com/lalith-99/huddle/internal/repository/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// world is one workspace with alice and bob in #general, carol in the
// workspace but not the channel.
type world struct {
	svc     *Service
	db      *memory.DB
	store   *kvstore.MemoryStore
	rec     *events.Recorder
	channel uuid.UUID
	alice   uuid.UUID
	bob     uuid.UUID
	carol   uuid.UUID
}

func newWorld(t *testing.T, rules map[ratelimit.Scope]ratelimit.Rule, opts ...Option) *world {
	t.Helper()
	ctx := context.Background()
	w := &world{db: memory.New(), store: kvstore.NewMemoryStore(), rec: &events.Recorder{}}

	mk := func(name string) uuid.UUID {
		u, err := w.db.Users().Create(ctx, &models.User{Email: name + "@example.com", Username: name})
		require.NoError(t, err)
		return u.ID
	}
	w.alice, w.bob, w.carol = mk("alice"), mk("bob"), mk("carol")

	ws, err := w.db.Workspaces().Create(ctx, &models.Workspace{Name: "Acme", Slug: "acme", OwnerID: w.alice})
	require.NoError(t, err)
	for _, u := range []uuid.UUID{w.bob, w.carol} {
		_, err = w.db.Workspaces().AddMember(ctx, ws.ID, u, models.RoleMember)
		require.NoError(t, err)
	}
	ch, err := w.db.Channels().Create(ctx, &models.Channel{WorkspaceID: ws.ID, Name: "general", Slug: "general", Type: models.ChannelPublic, CreatedBy: w.alice})
	require.NoError(t, err)
	require.NoError(t, w.db.Memberships().AddMembers(ctx, ch.ID, []uuid.UUID{w.alice, w.bob}))
	w.channel = ch.ID

	authority := authz.NewAuthority(w.db.Workspaces(), w.db.Channels(), w.db.Memberships(), w.db.Messages(), w.db.DirectMessages())
	w.svc = NewService(Repositories{
		Users:          w.db.Users(),
		Memberships:    w.db.Memberships(),
		Messages:       w.db.Messages(),
		DirectMessages: w.db.DirectMessages(),
		Reactions:      w.db.Reactions(),
		Attachments:    w.db.Attachments(),
	},
		authority,
		cache.New(w.store, nil, zap.NewNop()),
		ratelimit.New(w.store, rules, zap.NewNop()),
		w.rec,
		zap.NewNop(),
		opts...,
	)
	return w
}

func (w *world) send(t *testing.T, from uuid.UUID, content string) *models.Message {
	t.Helper()
	msg, err := w.svc.Send(context.Background(), from, w.channel, SendInput{Content: content})
	require.NoError(t, err)
	return msg
}

func (w *world) cached(key string) bool {
	_, ok, _ := w.store.Get(context.Background(), key)
	return ok
}

func reasonOf(t *testing.T, err error) apperr.Reason {
	t.Helper()
	reason, ok := apperr.ReasonOf(err)
	require.True(t, ok, "error %v carries no reason", err)
	return reason
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)

	msg := w.send(t, w.alice, "  hello  ")
	assert.Equal(t, "hello", msg.Content)
	assert.Len(t, w.rec.OfType(events.MessageCreated), 1)

	_, err := w.svc.Send(ctx, w.carol, w.channel, SendInput{Content: "hi"})
	assert.Equal(t, apperr.ReasonNotMember, reasonOf(t, err))

	_, err = w.svc.Send(ctx, w.alice, w.channel, SendInput{Content: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = w.svc.Send(ctx, w.alice, uuid.New(), SendInput{Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSend_RateLimited(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, map[ratelimit.Scope]ratelimit.Rule{
		ratelimit.ScopeMessages: {Max: 2, Window: time.Minute},
	})
	w.send(t, w.alice, "one")
	w.send(t, w.alice, "two")

	_, err := w.svc.Send(ctx, w.alice, w.channel, SendInput{Content: "three"})
	require.ErrorIs(t, err, apperr.ErrRateLimited)

	// The denied send wrote nothing.
	page, err := w.svc.List(ctx, w.alice, w.channel, 1)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)

	w.send(t, w.bob, "bob has his own window")
}

func TestThreads_OneLevel(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	root := w.send(t, w.alice, "root")

	r1, err := w.svc.Send(ctx, w.bob, w.channel, SendInput{Content: "first", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = w.svc.Send(ctx, w.alice, w.channel, SendInput{Content: "second", ParentID: &root.ID})
	require.NoError(t, err)

	_, err = w.svc.Send(ctx, w.alice, w.channel, SendInput{Content: "nested", ParentID: &r1.ID})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, apperr.ReasonNestedThread, reasonOf(t, err))

	missing := int64(999999)
	_, err = w.svc.Send(ctx, w.alice, w.channel, SendInput{Content: "orphan", ParentID: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	replies, err := w.svc.Thread(ctx, w.alice, root.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "first", replies[0].Content)
	assert.Equal(t, "second", replies[1].Content)

	page, err := w.svc.List(ctx, w.alice, w.channel, 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1, "replies are not top-level")
	assert.Equal(t, 2, page.Messages[0].ReplyCount)

	_, err = w.svc.Thread(ctx, w.carol, root.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditAndDelete_SenderOnly(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	msg := w.send(t, w.alice, "draft")

	_, err := w.svc.Edit(ctx, w.bob, msg.ID, "hijack")
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))
	err = w.svc.Delete(ctx, w.bob, msg.ID)
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))

	edited, err := w.svc.Edit(ctx, w.alice, msg.ID, "final")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "final", edited.Content)

	require.NoError(t, w.svc.Delete(ctx, w.alice, msg.ID))
	_, err = w.svc.Edit(ctx, w.alice, msg.ID, "again")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReactionToggle(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	msg := w.send(t, w.alice, "vote")

	count := func() int {
		page, err := w.svc.List(ctx, w.bob, w.channel, 1)
		require.NoError(t, err)
		total := 0
		for _, r := range page.Messages[0].Reactions {
			total += r.Count
		}
		return total
	}

	res, err := w.svc.React(ctx, w.bob, msg.ID, "👍")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, 1, count())

	res, err = w.svc.React(ctx, w.bob, msg.ID, "👍")
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.Equal(t, 0, count(), "twice is zero")

	_, err = w.svc.React(ctx, w.bob, msg.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, 1, count(), "three times is one")

	_, err = w.svc.React(ctx, w.bob, msg.ID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = w.svc.React(ctx, w.carol, msg.ID, "👍")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTogglePin(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	msg := w.send(t, w.alice, "important")

	pinned, err := w.svc.TogglePin(ctx, w.bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, pinned.Pinned)
	pinned, err = w.svc.TogglePin(ctx, w.bob, msg.ID)
	require.NoError(t, err)
	assert.False(t, pinned.Pinned)
}

func TestList_PagesAndInvalidation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil, WithPageSize(2))
	for _, c := range []string{"m1", "m2", "m3"} {
		w.send(t, w.alice, c)
	}

	p1, err := w.svc.List(ctx, w.bob, w.channel, 1)
	require.NoError(t, err)
	require.Len(t, p1.Messages, 2)
	assert.True(t, p1.HasMore)
	assert.Equal(t, "m3", p1.Messages[0].Content, "newest first")

	p2, err := w.svc.List(ctx, w.bob, w.channel, 2)
	require.NoError(t, err)
	require.Len(t, p2.Messages, 1)
	assert.False(t, p2.HasMore)

	assert.True(t, w.cached(cachekey.ForChannelMessages(w.channel, 1)))
	assert.True(t, w.cached(cachekey.ForChannelMessages(w.channel, 2)))

	w.send(t, w.bob, "m4")
	assert.False(t, w.cached(cachekey.ForChannelMessages(w.channel, 1)))
	assert.False(t, w.cached(cachekey.ForChannelMessages(w.channel, 2)))

	p1, err = w.svc.List(ctx, w.bob, w.channel, 1)
	require.NoError(t, err)
	assert.Equal(t, "m4", p1.Messages[0].Content)

	_, err = w.svc.List(ctx, w.bob, w.channel, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = w.svc.List(ctx, w.carol, w.channel, 1)
	assert.Equal(t, apperr.ReasonNotMember, reasonOf(t, err))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	w.send(t, w.alice, "deploy at noon")
	w.send(t, w.bob, "lunch?")

	_, err := w.svc.Search(ctx, w.alice, "de")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	found, err := w.svc.Search(ctx, w.bob, "DEPLOY")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = w.svc.Search(ctx, w.carol, "deploy")
	require.NoError(t, err)
	assert.Empty(t, found, "carol is in no channel")
}

func TestUnreadCounts(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	w.send(t, w.alice, "one")
	w.send(t, w.alice, "two")
	_, err := w.svc.SendDirect(ctx, w.alice, w.bob, "psst")
	require.NoError(t, err)

	counts, err := w.svc.Unread(ctx, w.bob)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Channels[w.channel])
	assert.Equal(t, 1, counts.Direct)
	assert.Equal(t, 3, counts.Total)
	assert.True(t, w.cached(cachekey.ForUnreadCount(w.bob)))

	// A new message drops bob's counter but not alice's own.
	_, _ = w.svc.Unread(ctx, w.alice)
	w.send(t, w.alice, "three")
	assert.False(t, w.cached(cachekey.ForUnreadCount(w.bob)))
	assert.True(t, w.cached(cachekey.ForUnreadCount(w.alice)))

	counts, err = w.svc.Unread(ctx, w.bob)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
}

func TestDirectMessages(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)

	_, err := w.svc.SendDirect(ctx, w.alice, w.alice, "me")
	assert.Equal(t, apperr.ReasonSelfTarget, reasonOf(t, err))
	_, err = w.svc.SendDirect(ctx, w.alice, uuid.New(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	dm, err := w.svc.SendDirect(ctx, w.alice, w.bob, "hi bob")
	require.NoError(t, err)

	_, err = w.svc.MarkDirectRead(ctx, w.alice, dm.ID)
	assert.Equal(t, apperr.ReasonNotRecipient, reasonOf(t, err))
	_, err = w.svc.MarkDirectRead(ctx, w.carol, dm.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	read, err := w.svc.MarkDirectRead(ctx, w.bob, dm.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	res, err := w.svc.ReactDirect(ctx, w.bob, dm.ID, "❤️")
	require.NoError(t, err)
	assert.True(t, res.Added)

	conv, err := w.svc.Conversation(ctx, w.bob, w.alice, 0, 0)
	require.NoError(t, err)
	require.Len(t, conv, 1)
	require.Len(t, conv[0].Reactions, 1)
	assert.Equal(t, "❤️", conv[0].Reactions[0].Emoji)

	partners, err := w.svc.Conversations(ctx, w.bob)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, w.alice, partners[0].ID)
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, nil)
	msg := w.send(t, w.alice, "see file")
	file := AttachmentInput{Filename: "plan.pdf", FileType: "application/pdf", FileSize: 1024, StorageKey: "uploads/plan.pdf"}

	_, err := w.svc.Attach(ctx, w.bob, models.MessageTarget(msg.ID), file)
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))

	_, err = w.svc.Attach(ctx, w.alice, models.MessageTarget(msg.ID), AttachmentInput{Filename: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, _ = w.svc.List(ctx, w.alice, w.channel, 1)
	a, err := w.svc.Attach(ctx, w.alice, models.MessageTarget(msg.ID), file)
	require.NoError(t, err)
	assert.False(t, w.cached(cachekey.ForChannelMessages(w.channel, 1)))

	page, err := w.svc.List(ctx, w.alice, w.channel, 1)
	require.NoError(t, err)
	require.Len(t, page.Messages[0].Attachments, 1)
	assert.Equal(t, a.ID, page.Messages[0].Attachments[0].ID)

	dm, _ := w.svc.SendDirect(ctx, w.bob, w.alice, "here")
	_, err = w.svc.Attach(ctx, w.alice, models.DirectMessageTarget(dm.ID), file)
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))

	uploads, err := w.svc.MyUploads(ctx, w.alice)
	require.NoError(t, err)
	assert.Len(t, uploads, 1)
}

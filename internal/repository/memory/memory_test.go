package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

func seedUser(t *testing.T, db *DB, name string) *models.User {
	t.Helper()
	u, err := db.Users().Create(context.Background(), &models.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

func TestUsers_UniqueEmailAndUsername(t *testing.T) {
	db := New()
	seedUser(t, db, "alice")

	_, err := db.Users().Create(context.Background(), &models.User{Email: "alice@example.com", Username: "other"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	_, err = db.Users().Create(context.Background(), &models.User{Email: "new@example.com", Username: "alice"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestWorkspaces_CreateAddsOwnerAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	db := New()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	ws, err := db.Workspaces().Create(ctx, &models.Workspace{Name: "Acme", Slug: "acme", OwnerID: alice.ID})
	require.NoError(t, err)

	m, err := db.Workspaces().GetMember(ctx, ws.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, models.RoleOwner, m.Role)

	_, err = db.Workspaces().Create(ctx, &models.Workspace{Name: "Acme 2", Slug: "acme", OwnerID: bob.ID})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = db.Workspaces().AddMember(ctx, ws.ID, bob.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = db.Workspaces().AddMember(ctx, ws.ID, bob.ID, models.RoleMember)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	list, err := db.Workspaces().ListForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].MemberCount)
}

func TestWorkspaces_RemoveMemberDropsChannelMemberships(t *testing.T) {
	ctx := context.Background()
	db := New()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	ws, _ := db.Workspaces().Create(ctx, &models.Workspace{Name: "Acme", Slug: "acme", OwnerID: alice.ID})
	_, _ = db.Workspaces().AddMember(ctx, ws.ID, bob.ID, models.RoleMember)
	ch, _ := db.Channels().Create(ctx, &models.Channel{WorkspaceID: ws.ID, Name: "general", Slug: "general", Type: models.ChannelPublic, CreatedBy: alice.ID})
	_, _ = db.Memberships().AddMember(ctx, ch.ID, bob.ID)

	require.NoError(t, db.Workspaces().RemoveMember(ctx, ws.ID, bob.ID))

	ok, err := db.Memberships().IsMember(ctx, ch.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemberships_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := New()
	ch := uuid.New()
	u := uuid.New()

	added, _ := db.Memberships().AddMember(ctx, ch, u)
	assert.True(t, added)
	added, _ = db.Memberships().AddMember(ctx, ch, u)
	assert.False(t, added)

	removed, _ := db.Memberships().RemoveMember(ctx, ch, u)
	assert.True(t, removed)
	removed, _ = db.Memberships().RemoveMember(ctx, ch, u)
	assert.False(t, removed)
}

func TestMessages_UnreadCountsFollowReadMarker(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	db := New(WithClock(func() time.Time { return fixed }))
	alice := uuid.New()
	bob := uuid.New()
	ch := uuid.New()
	_, _ = db.Memberships().AddMember(ctx, ch, alice)
	_, _ = db.Memberships().AddMember(ctx, ch, bob)

	for i := 0; i < 3; i++ {
		_, err := db.Messages().Create(ctx, &models.Message{ChannelID: ch, SenderID: alice, Content: "hi"})
		require.NoError(t, err)
	}

	counts, err := db.Messages().CountUnread(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[ch])

	own, _ := db.Messages().CountUnread(ctx, alice)
	assert.Zero(t, own[ch], "own messages are never unread")

	require.NoError(t, db.Memberships().MarkRead(ctx, ch, bob, fixed))
	counts, _ = db.Messages().CountUnread(ctx, bob)
	assert.Zero(t, counts[ch])
}

func TestMessages_DeleteCascadesToRepliesAndReactions(t *testing.T) {
	ctx := context.Background()
	db := New()
	ch := uuid.New()
	u := uuid.New()

	root, _ := db.Messages().Create(ctx, &models.Message{ChannelID: ch, SenderID: u, Content: "root"})
	reply, _ := db.Messages().Create(ctx, &models.Message{ChannelID: ch, SenderID: u, Content: "reply", ParentID: &root.ID})
	_, _ = db.Reactions().Add(ctx, &models.Reaction{Target: models.MessageTarget(reply.ID), UserID: u, Emoji: "👍"})

	require.NoError(t, db.Messages().Delete(ctx, root.ID))

	got, _ := db.Messages().GetByID(ctx, reply.ID)
	assert.Nil(t, got)
	reactions, _ := db.Reactions().ListFor(ctx, models.TargetMessage, []int64{reply.ID})
	assert.Empty(t, reactions)
}

func TestDirectMessages_PartnersAndConversation(t *testing.T) {
	ctx := context.Background()
	db := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	_, _ = db.DirectMessages().Create(ctx, &models.DirectMessage{SenderID: a, RecipientID: b, Content: "1"})
	_, _ = db.DirectMessages().Create(ctx, &models.DirectMessage{SenderID: c, RecipientID: a, Content: "2"})
	last, _ := db.DirectMessages().Create(ctx, &models.DirectMessage{SenderID: b, RecipientID: a, Content: "3"})

	partners, err := db.DirectMessages().ListPartners(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, c}, partners)

	conv, _ := db.DirectMessages().ListConversation(ctx, a, b, 0, 10)
	require.Len(t, conv, 2)
	assert.Equal(t, last.ID, conv[0].ID)

	older, _ := db.DirectMessages().ListConversation(ctx, a, b, last.ID, 10)
	require.Len(t, older, 1)
	assert.Equal(t, "1", older[0].Content)

	n, _ := db.DirectMessages().CountUnread(ctx, a)
	assert.Equal(t, 2, n)
}

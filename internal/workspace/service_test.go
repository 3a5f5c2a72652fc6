package workspace

import (
	"context"
	"testing"

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
	"github.com/lalith-99/huddle/internal/repository/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	svc   *Service
	db    *memory.DB
	store *kvstore.MemoryStore
	rec   *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := memory.New()
	store := kvstore.NewMemoryStore()
	rec := &events.Recorder{}
	authority := authz.NewAuthority(db.Workspaces(), db.Channels(), db.Memberships(), db.Messages(), db.DirectMessages())
	svc := NewService(Repositories{
		Users:       db.Users(),
		Workspaces:  db.Workspaces(),
		Channels:    db.Channels(),
		Memberships: db.Memberships(),
	}, authority, cache.New(store, nil, zap.NewNop()), rec, zap.NewNop())
	return &harness{svc: svc, db: db, store: store, rec: rec}
}

func (h *harness) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u, err := h.db.Users().Create(context.Background(), &models.User{Email: name + "@example.com", Username: name})
	require.NoError(t, err)
	return u.ID
}

func (h *harness) cached(key string) bool {
	_, ok, _ := h.store.Get(context.Background(), key)
	return ok
}

func reasonOf(t *testing.T, err error) apperr.Reason {
	t.Helper()
	reason, ok := apperr.ReasonOf(err)
	require.True(t, ok, "error %v carries no reason", err)
	return reason
}

func TestPublicChannelBackfill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := h.user(t, "alice"), h.user(t, "bob")

	ws, err := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	role, ok, err := authz.NewAuthority(h.db.Workspaces(), h.db.Channels(), h.db.Memberships(), h.db.Messages(), h.db.DirectMessages()).
		WorkspaceRole(ctx, ws.ID, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.RoleOwner, role)

	general, err := h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "General", Slug: "general"})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelPublic, general.Type)

	_, err = h.svc.AddMember(ctx, a, ws.ID, b, "")
	require.NoError(t, err)

	members, err := h.svc.ChannelMembers(ctx, a, general.ID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids, "bob is in #general without joining")

	joined, err := h.svc.JoinChannel(ctx, b, general.ID)
	require.NoError(t, err)
	assert.False(t, joined, "already a member")
	assert.Len(t, h.rec.OfType(events.WorkspaceMemberAdded), 1)
}

func TestCreateChannel_PublicAutoJoinsWorkspace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := h.user(t, "alice"), h.user(t, "bob")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	_, err := h.svc.AddMember(ctx, a, ws.ID, b, models.RoleMember)
	require.NoError(t, err)

	public, err := h.svc.CreateChannel(ctx, b, ws.ID, CreateChannelInput{Name: "random", Slug: "random"})
	require.NoError(t, err)
	private, err := h.svc.CreateChannel(ctx, b, ws.ID, CreateChannelInput{Name: "secret", Slug: "secret", Type: models.ChannelPrivate})
	require.NoError(t, err)

	in, _ := h.db.Memberships().IsMember(ctx, public.ID, a)
	assert.True(t, in)
	in, _ = h.db.Memberships().IsMember(ctx, private.ID, a)
	assert.False(t, in)
	in, _ = h.db.Memberships().IsMember(ctx, private.ID, b)
	assert.True(t, in, "creator joins the private channel")

	_, err = h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "Random", Slug: "random"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, apperr.ReasonAlreadyExists, reasonOf(t, err))

	_, err = h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "Bad", Slug: "Not A Slug!"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJoinChannel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, outsider := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "mallory")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	public, _ := h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "general", Slug: "general"})
	private, _ := h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "secret", Slug: "secret", Type: models.ChannelPrivate})

	// Joins via the repository so bob is not back-filled into #general.
	_, err := h.db.Workspaces().AddMember(ctx, ws.ID, b, models.RoleMember)
	require.NoError(t, err)

	joined, err := h.svc.JoinChannel(ctx, b, public.ID)
	require.NoError(t, err)
	assert.True(t, joined)
	joined, err = h.svc.JoinChannel(ctx, b, public.ID)
	require.NoError(t, err)
	assert.False(t, joined)

	_, err = h.svc.JoinChannel(ctx, b, private.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, apperr.ReasonPrivateChannel, reasonOf(t, err))

	_, err = h.svc.JoinChannel(ctx, outsider, public.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLeaveAndInvite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, c := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	_, _ = h.svc.AddMember(ctx, a, ws.ID, b, models.RoleMember)
	private, _ := h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "secret", Slug: "secret", Type: models.ChannelPrivate})

	err := h.svc.LeaveChannel(ctx, b, private.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// bob cannot see the private channel listed, then gets invited.
	list, err := h.svc.ListChannels(ctx, b, ws.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = h.svc.InviteToChannel(ctx, b, private.ID, c)
	assert.Equal(t, apperr.ReasonNotMember, reasonOf(t, err), "inviter must be in the channel")
	err = h.svc.InviteToChannel(ctx, a, private.ID, c)
	assert.Equal(t, apperr.ReasonTargetNotMember, reasonOf(t, err), "carol is not in the workspace")

	require.NoError(t, h.svc.InviteToChannel(ctx, a, private.ID, b))
	err = h.svc.InviteToChannel(ctx, a, private.ID, b)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	list, err = h.svc.ListChannels(ctx, b, ws.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsMember)

	require.NoError(t, h.svc.LeaveChannel(ctx, b, private.ID))
	_, err = h.svc.GetChannel(ctx, b, private.ID)
	assert.Equal(t, apperr.ReasonPrivateChannel, reasonOf(t, err))
}

func TestMembershipRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner, admin, member := h.user(t, "owner"), h.user(t, "admin"), h.user(t, "member")
	ws, _ := h.svc.CreateWorkspace(ctx, owner, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})

	_, err := h.svc.AddMember(ctx, owner, ws.ID, admin, models.RoleAdmin)
	require.NoError(t, err)
	_, err = h.svc.AddMember(ctx, admin, ws.ID, member, models.RoleMember)
	require.NoError(t, err)

	_, err = h.svc.AddMember(ctx, admin, ws.ID, member, models.RoleMember)
	assert.Equal(t, apperr.ReasonAlreadyExists, reasonOf(t, err))

	_, err = h.svc.AddMember(ctx, owner, ws.ID, uuid.New(), models.RoleMember)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.AddMember(ctx, owner, ws.ID, member, models.RoleOwner)
	assert.ErrorIs(t, err, apperr.ErrValidation, "ownership is never granted")

	err = h.svc.RemoveMember(ctx, admin, ws.ID, owner)
	assert.Equal(t, apperr.ReasonOwnerImmutable, reasonOf(t, err))
	err = h.svc.RemoveMember(ctx, member, ws.ID, admin)
	assert.Equal(t, apperr.ReasonNotOwnerOrAdmin, reasonOf(t, err))

	_, err = h.svc.UpdateMemberRole(ctx, admin, ws.ID, member, models.RoleGuest)
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))
	m, err := h.svc.UpdateMemberRole(ctx, owner, ws.ID, member, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, m.Role)

	require.NoError(t, h.svc.RemoveMember(ctx, owner, ws.ID, member))
	_, err = h.svc.GetWorkspace(ctx, member, ws.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWorkspaceCaching(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, bystander := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	other, _ := h.svc.CreateWorkspace(ctx, bystander, CreateWorkspaceInput{Name: "Other", Slug: "other"})

	list, err := h.svc.ListWorkspaces(ctx, a)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].MemberCount)
	_, _ = h.svc.ListWorkspaces(ctx, b)
	_, _ = h.svc.ListWorkspaces(ctx, bystander)

	detail, err := h.svc.GetWorkspace(ctx, a, ws.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Members, 1)
	require.True(t, h.cached(cachekey.ForWorkspaceDetail(ws.ID)))

	_, err = h.svc.AddMember(ctx, a, ws.ID, b, models.RoleMember)
	require.NoError(t, err)

	assert.False(t, h.cached(cachekey.ForWorkspaceDetail(ws.ID)))
	assert.False(t, h.cached(cachekey.ForWorkspaceList(b)))
	assert.True(t, h.cached(cachekey.ForWorkspaceList(bystander)), "unaffected users keep their list")

	list, err = h.svc.ListWorkspaces(ctx, b)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ws.ID, list[0].ID)

	detail, err = h.svc.GetWorkspace(ctx, b, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.MemberCount)

	// Renaming touches every member's list.
	_, _ = h.svc.ListWorkspaces(ctx, a)
	_, err = h.svc.UpdateWorkspace(ctx, b, ws.ID, UpdateWorkspaceInput{Name: "Acme Inc"})
	assert.Equal(t, apperr.ReasonNotOwnerOrAdmin, reasonOf(t, err))
	_, err = h.svc.UpdateWorkspace(ctx, a, ws.ID, UpdateWorkspaceInput{Name: "Acme Inc"})
	require.NoError(t, err)
	assert.False(t, h.cached(cachekey.ForWorkspaceList(a)))
	assert.False(t, h.cached(cachekey.ForWorkspaceList(b)))
	assert.True(t, h.cached(cachekey.ForWorkspaceList(bystander)))

	_, err = h.svc.GetWorkspace(ctx, a, other.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteWorkspace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := h.user(t, "alice"), h.user(t, "bob")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	_, _ = h.svc.AddMember(ctx, a, ws.ID, b, models.RoleAdmin)
	_, _ = h.svc.ListWorkspaces(ctx, b)

	err := h.svc.DeleteWorkspace(ctx, b, ws.ID)
	assert.Equal(t, apperr.ReasonNotOwner, reasonOf(t, err))

	require.NoError(t, h.svc.DeleteWorkspace(ctx, a, ws.ID))
	assert.False(t, h.cached(cachekey.ForWorkspaceList(b)))

	list, err := h.svc.ListWorkspaces(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := h.user(t, "alice"), h.user(t, "bob")
	ws, _ := h.svc.CreateWorkspace(ctx, a, CreateWorkspaceInput{Name: "Acme", Slug: "acme"})
	general, _ := h.svc.CreateChannel(ctx, a, ws.ID, CreateChannelInput{Name: "general", Slug: "general"})
	_, _ = h.db.Workspaces().AddMember(ctx, ws.ID, b, models.RoleMember)

	err := h.svc.MarkRead(ctx, b, general.ID)
	assert.Equal(t, apperr.ReasonNotMember, reasonOf(t, err))

	h.svc.cache.SetJSON(ctx, cachekey.ForUnreadCount(a), models.UnreadCounts{UserID: a})
	require.NoError(t, h.svc.MarkRead(ctx, a, general.ID))
	assert.False(t, h.cached(cachekey.ForUnreadCount(a)))

	m, err := h.db.Memberships().GetMember(ctx, general.ID, a)
	require.NoError(t, err)
	assert.NotNil(t, m.LastReadAt)
}

package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

// Authority loads membership facts from the system of record and applies
// the decision functions to them.
//
// Visibility policy, applied uniformly: a resource is visible to members of
// its enclosing scope. A resource the actor cannot see is reported as
// *apperr.NotFoundError, exactly as if it did not exist. A resource the actor
// can see but may not act on yields a denied Decision with a reason.
//
//   - workspace: visible to its members
//   - channel: visible to members of its workspace (a private channel's
//     contents still need channel membership, see authorizeChannel)
//   - message: visible to members of its channel
//   - direct message: visible to its sender and recipient
type Authority struct {
	workspaces  repository.WorkspaceRepository
	channels    repository.ChannelRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	directs     repository.DirectMessageRepository
}

func NewAuthority(
	workspaces repository.WorkspaceRepository,
	channels repository.ChannelRepository,
	memberships repository.MembershipRepository,
	messages repository.MessageRepository,
	directs repository.DirectMessageRepository,
) *Authority {
	return &Authority{
		workspaces:  workspaces,
		channels:    channels,
		memberships: memberships,
		messages:    messages,
		directs:     directs,
	}
}

// WorkspaceRole returns the user's role, or false if not a member.
func (a *Authority) WorkspaceRole(ctx context.Context, workspaceID, userID uuid.UUID) (models.Role, bool, error) {
	m, err := a.workspaces.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return "", false, fmt.Errorf("load workspace role: %w", err)
	}
	role, ok := RoleOf(m)
	return role, ok, nil
}

func (a *Authority) CanMutateWorkspace(ctx context.Context, workspaceID, userID uuid.UUID) (Decision, error) {
	m, err := a.workspaces.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("load workspace role: %w", err)
	}
	return MutateWorkspace(m), nil
}

func (a *Authority) IsWorkspaceOwner(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	role, ok, err := a.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return false, err
	}
	return ok && role == models.RoleOwner, nil
}

func (a *Authority) CanJoinChannel(ctx context.Context, ch *models.Channel, userID uuid.UUID) (Decision, error) {
	m, err := a.workspaces.GetMember(ctx, ch.WorkspaceID, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("load workspace role: %w", err)
	}
	return JoinChannel(ch, m), nil
}

func (a *Authority) CanInviteToChannel(ctx context.Context, ch *models.Channel, inviterID, inviteeID uuid.UUID) (Decision, error) {
	inChannel, err := a.memberships.IsMember(ctx, ch.ID, inviterID)
	if err != nil {
		return Decision{}, fmt.Errorf("check inviter membership: %w", err)
	}
	invitee, err := a.workspaces.GetMember(ctx, ch.WorkspaceID, inviteeID)
	if err != nil {
		return Decision{}, fmt.Errorf("load invitee role: %w", err)
	}
	return InviteToChannel(inviterID, inChannel, inviteeID, invitee), nil
}

// CanMutateMessage needs no I/O: the message row carries its sender.
func (a *Authority) CanMutateMessage(msg *models.Message, actorID uuid.UUID) Decision {
	return MutateMessage(msg, actorID)
}

func (a *Authority) CanRemoveWorkspaceMember(ctx context.Context, workspaceID, actorID, targetID uuid.UUID) (Decision, error) {
	actor, target, err := a.pair(ctx, workspaceID, actorID, targetID)
	if err != nil {
		return Decision{}, err
	}
	return RemoveWorkspaceMember(actor, target), nil
}

func (a *Authority) CanChangeWorkspaceRole(ctx context.Context, workspaceID, actorID, targetID uuid.UUID) (Decision, error) {
	actor, target, err := a.pair(ctx, workspaceID, actorID, targetID)
	if err != nil {
		return Decision{}, err
	}
	return ChangeWorkspaceRole(actor, target), nil
}

func (a *Authority) pair(ctx context.Context, workspaceID, actorID, targetID uuid.UUID) (*models.WorkspaceMember, *models.WorkspaceMember, error) {
	actor, err := a.workspaces.GetMember(ctx, workspaceID, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load actor role: %w", err)
	}
	target, err := a.workspaces.GetMember(ctx, workspaceID, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("load target role: %w", err)
	}
	return actor, target, nil
}

// WorkspaceMember returns the actor's membership, or NotFound if the
// workspace does not exist or the actor is not in it.
func (a *Authority) WorkspaceMember(ctx context.Context, actorID, workspaceID uuid.UUID) (*models.WorkspaceMember, error) {
	m, err := a.workspaces.GetMember(ctx, workspaceID, actorID)
	if err != nil {
		return nil, fmt.Errorf("load workspace role: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("workspace")
	}
	return m, nil
}

// ChannelAccess is a visible channel plus the actor's standing in it.
type ChannelAccess struct {
	Channel   *models.Channel
	Member    *models.WorkspaceMember
	InChannel bool
}

// Channel resolves a channel the actor can see: it must exist and the actor
// must belong to its workspace.
func (a *Authority) Channel(ctx context.Context, actorID, channelID uuid.UUID) (*ChannelAccess, error) {
	ch, err := a.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("channel")
	}
	m, err := a.workspaces.GetMember(ctx, ch.WorkspaceID, actorID)
	if err != nil {
		return nil, fmt.Errorf("load workspace role: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("channel")
	}
	in, err := a.memberships.IsMember(ctx, ch.ID, actorID)
	if err != nil {
		return nil, fmt.Errorf("check channel membership: %w", err)
	}
	return &ChannelAccess{Channel: ch, Member: m, InChannel: in}, nil
}

// Message resolves a message the actor can see.
func (a *Authority) Message(ctx context.Context, actorID uuid.UUID, messageID int64) (*models.Message, error) {
	msg, err := a.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	in, err := a.memberships.IsMember(ctx, msg.ChannelID, actorID)
	if err != nil {
		return nil, fmt.Errorf("check channel membership: %w", err)
	}
	if !in {
		return nil, apperr.NotFound("message")
	}
	return msg, nil
}

// DirectMessage resolves a direct message the actor is a party to.
func (a *Authority) DirectMessage(ctx context.Context, actorID uuid.UUID, id int64) (*models.DirectMessage, error) {
	dm, err := a.directs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load direct message: %w", err)
	}
	if dm == nil || (dm.SenderID != actorID && dm.RecipientID != actorID) {
		return nil, apperr.NotFound("direct message")
	}
	return dm, nil
}

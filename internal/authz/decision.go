// Package authz is the single source of truth for access decisions.
//
// Decisions are computed from the system of record, never from the cache:
// a stale cached role must not grant or deny anything. The pure functions
// in this file take already-loaded rows; Authority loads them.
package authz

import (
	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
)

// Decision is a tagged allow/deny outcome. A denial always carries a reason.
type Decision struct {
	Allowed bool
	Reason  apperr.Reason
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason apperr.Reason) Decision { return Decision{Reason: reason} }

// Err returns nil when allowed and an *apperr.AuthorizationError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden(d.Reason)
}

// RoleOf returns the role recorded in m, or false if m is nil (not a member).
func RoleOf(m *models.WorkspaceMember) (models.Role, bool) {
	if m == nil {
		return "", false
	}
	return m.Role, true
}

// MutateWorkspace allows owners and admins.
func MutateWorkspace(actor *models.WorkspaceMember) Decision {
	role, ok := RoleOf(actor)
	if !ok {
		return Deny(apperr.ReasonNotMember)
	}
	if !role.CanManage() {
		return Deny(apperr.ReasonNotOwnerOrAdmin)
	}
	return Allow()
}

// OwnWorkspace allows only the owner.
func OwnWorkspace(actor *models.WorkspaceMember) Decision {
	role, ok := RoleOf(actor)
	if !ok {
		return Deny(apperr.ReasonNotMember)
	}
	if role != models.RoleOwner {
		return Deny(apperr.ReasonNotOwner)
	}
	return Allow()
}

// JoinChannel: private channels are invite-only; public channels are open
// to every workspace member.
func JoinChannel(ch *models.Channel, actor *models.WorkspaceMember) Decision {
	if actor == nil {
		return Deny(apperr.ReasonNotMember)
	}
	if ch.IsPrivate() {
		return Deny(apperr.ReasonPrivateChannel)
	}
	return Allow()
}

// InviteToChannel: the inviter must already be in the channel and the
// invitee must belong to the channel's workspace.
func InviteToChannel(inviterID uuid.UUID, inviterInChannel bool, inviteeID uuid.UUID, invitee *models.WorkspaceMember) Decision {
	if !inviterInChannel {
		return Deny(apperr.ReasonNotMember)
	}
	if inviterID == inviteeID {
		return Deny(apperr.ReasonSelfTarget)
	}
	if invitee == nil {
		return Deny(apperr.ReasonTargetNotMember)
	}
	return Allow()
}

// MutateMessage: only the sender may edit or delete.
func MutateMessage(msg *models.Message, actorID uuid.UUID) Decision {
	if msg.SenderID != actorID {
		return Deny(apperr.ReasonNotOwner)
	}
	return Allow()
}

// RemoveWorkspaceMember: the actor must be owner or admin, and the owner
// can never be removed, whoever asks.
func RemoveWorkspaceMember(actor, target *models.WorkspaceMember) Decision {
	if d := MutateWorkspace(actor); !d.Allowed {
		return d
	}
	if target == nil {
		return Deny(apperr.ReasonTargetNotMember)
	}
	if target.Role == models.RoleOwner {
		return Deny(apperr.ReasonOwnerImmutable)
	}
	return Allow()
}

// ChangeWorkspaceRole is stricter than general mutation: owner only, and
// the owner's own role is fixed.
func ChangeWorkspaceRole(actor, target *models.WorkspaceMember) Decision {
	if d := OwnWorkspace(actor); !d.Allowed {
		return d
	}
	if target == nil {
		return Deny(apperr.ReasonTargetNotMember)
	}
	if target.Role == models.RoleOwner {
		return Deny(apperr.ReasonOwnerImmutable)
	}
	return Allow()
}

// SendDirect rejects messages to oneself.
func SendDirect(senderID, recipientID uuid.UUID) Decision {
	if senderID == recipientID {
		return Deny(apperr.ReasonSelfTarget)
	}
	return Allow()
}

// MarkDirectRead: only the recipient may flip the read flag.
func MarkDirectRead(dm *models.DirectMessage, actorID uuid.UUID) Decision {
	if dm.RecipientID != actorID {
		return Deny(apperr.ReasonNotRecipient)
	}
	return Allow()
}

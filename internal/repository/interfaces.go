package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/models"
)

// Why context.Context as the first parameter on every method?
//
//   - Every method here does I/O against the system of record.
//   - If the HTTP request is cancelled, the query is cancelled with it.
//
// Conventions shared by every implementation:
//
//   - Single-row lookups return nil, nil when the row does not exist. The
//     service layer decides whether that is a 404.
//   - List methods return an empty slice, never nil, so JSON renders [].
//   - Uniqueness violations come back as ErrDuplicate so services can map
//     them to ALREADY_EXISTS without knowing the driver's error codes.

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("repository: duplicate")

// ProfileUpdate carries the editable profile fields. Nil fields are left as is.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

// UserRepository handles user rows.
type UserRepository interface {
	// Create inserts a user. ErrDuplicate if email or username is taken.
	Create(ctx context.Context, u *models.User) (*models.User, error)

	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail is used by login.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByIDs returns the users that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)

	UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (*models.User, error)
	UpdateStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus, seenAt time.Time) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// SearchVisible matches username, display name or email, restricted to
	// users sharing at least one workspace with actorID.
	SearchVisible(ctx context.Context, actorID uuid.UUID, query string, limit int) ([]models.User, error)
}

// WorkspaceRepository handles workspaces and workspace membership.
type WorkspaceRepository interface {
	// Create inserts the workspace and its owner membership in one
	// transaction. ErrDuplicate if the slug is taken.
	Create(ctx context.Context, ws *models.Workspace) (*models.Workspace, error)

	GetByID(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error)
	Update(ctx context.Context, workspaceID uuid.UUID, name, description string) (*models.Workspace, error)

	// Delete removes the workspace and, by cascade, its channels and messages.
	Delete(ctx context.Context, workspaceID uuid.UUID) error

	// ListForUser returns the workspaces userID belongs to with member and
	// channel counts, oldest membership first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WorkspaceSummary, error)

	// GetMember returns nil, nil if userID is not a member. Hot path: every
	// authorization decision starts here.
	GetMember(ctx context.Context, workspaceID, userID uuid.UUID) (*models.WorkspaceMember, error)

	// AddMember returns ErrDuplicate if userID is already a member.
	AddMember(ctx context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error)

	// RemoveMember also removes userID from every channel of the workspace.
	RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error

	UpdateMemberRole(ctx context.Context, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error)
	ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]models.WorkspaceMember, error)
}

// ChannelRepository handles channels.
type ChannelRepository interface {
	// Create inserts a channel. ErrDuplicate if the slug is taken in the workspace.
	Create(ctx context.Context, ch *models.Channel) (*models.Channel, error)

	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// ListByWorkspace returns every channel of the workspace, public and
	// private, with member counts, ordered by name.
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.ChannelSummary, error)
}

// MembershipRepository handles who belongs to which channel.
type MembershipRepository interface {
	// AddMember is idempotent and reports whether a row was inserted.
	AddMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)

	// AddMembers inserts every missing membership, skipping existing ones.
	AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error

	// RemoveMember is idempotent and reports whether a row was deleted.
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)

	GetMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error)

	// IsMember is called before every channel read and message send.
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)

	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)

	// ListChannelIDs returns the channels userID belongs to across all workspaces.
	ListChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	MarkRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error
}

// MessageRepository handles channel messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// UpdateContent replaces the content and sets the edited flag.
	UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error)

	SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error)

	// Delete removes the message and its replies, reactions and attachments.
	Delete(ctx context.Context, messageID int64) error

	// ListTopLevel returns thread roots and plain messages of a channel,
	// newest first. Replies are listed through ListReplies.
	ListTopLevel(ctx context.Context, channelID uuid.UUID, offset, limit int) ([]models.Message, error)

	// ListReplies returns the replies of parentID, oldest first.
	ListReplies(ctx context.Context, parentID int64) ([]models.Message, error)

	CountReplies(ctx context.Context, parentIDs []int64) (map[int64]int, error)

	// Search matches content in the given channels, newest first.
	Search(ctx context.Context, channelIDs []uuid.UUID, query string, limit int) ([]models.Message, error)

	// CountUnread returns, per channel userID belongs to, the number of
	// messages by others newer than last_read_at (or joined_at if never read).
	CountUnread(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
}

// DirectMessageRepository handles one-to-one messages.
type DirectMessageRepository interface {
	Create(ctx context.Context, dm *models.DirectMessage) (*models.DirectMessage, error)
	GetByID(ctx context.Context, id int64) (*models.DirectMessage, error)

	// ListConversation returns messages between a and b in either
	// direction, newest first. before=0 starts from the latest.
	ListConversation(ctx context.Context, a, b uuid.UUID, before int64, limit int) ([]models.DirectMessage, error)

	// ListPartners returns everyone userID has exchanged messages with,
	// most recent conversation first.
	ListPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	MarkRead(ctx context.Context, id int64, at time.Time) (*models.DirectMessage, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
}

// ReactionRepository handles (target, user, emoji) reaction triples.
type ReactionRepository interface {
	// Add reports false if the triple already existed.
	Add(ctx context.Context, r *models.Reaction) (bool, error)

	// Remove reports false if the triple did not exist.
	Remove(ctx context.Context, target models.Target, userID uuid.UUID, emoji string) (bool, error)

	// ListFor returns reactions grouped by target id, oldest first.
	ListFor(ctx context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Reaction, error)
}

// AttachmentRepository handles attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error)
	ListFor(ctx context.Context, kind models.TargetKind, ids []int64) (map[int64][]models.Attachment, error)
	ListByUploader(ctx context.Context, userID uuid.UUID) ([]models.Attachment, error)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's role inside a workspace.
//
// Ordered from most to least privileged. Exactly one member of a workspace
// holds RoleOwner, and it is the user recorded as Workspace.OwnerID.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// CanManage reports whether the role may mutate workspace settings and membership.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ChannelType decides how users get into a channel.
//
// Public channels: any workspace member may self-join, and every workspace
// member is auto-joined when the channel is created.
// Private channels: invite-only, hidden from non-members.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
)

// UserStatus is the self-reported presence of a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusBusy    UserStatus = "busy"
	StatusOffline UserStatus = "offline"
)

// User is a person who can belong to many workspaces.
//
// PasswordHash is never serialized. It travels with the row so login can
// compare against it without a second query.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Bio          string     `json:"bio"`
	AvatarURL    string     `json:"avatar_url"`
	Status       UserStatus `json:"status"`
	PasswordHash string     `json:"-"`
	LastSeen     time.Time  `json:"last_seen"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Workspace is the top-level isolation boundary (a team or organization).
// Every channel belongs to exactly one workspace.
type Workspace struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkspaceMember is the join table between workspaces and users.
type WorkspaceMember struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Channel is a chat room within a workspace (like #general or #incident-123).
// Slug is unique within its workspace only.
type Channel struct {
	ID          uuid.UUID   `json:"id"`
	WorkspaceID uuid.UUID   `json:"workspace_id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Type        ChannelType `json:"type"`
	CreatedBy   uuid.UUID   `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsPrivate is shorthand for Type == ChannelPrivate.
func (c *Channel) IsPrivate() bool {
	return c.Type == ChannelPrivate
}

// ChannelMember is the join table between channels and users.
//
// LastReadAt is nil until the user marks the channel read for the first time;
// until then every message after JoinedAt counts as unread.
type ChannelMember struct {
	ChannelID  uuid.UUID  `json:"channel_id"`
	UserID     uuid.UUID  `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at"`
}

// Message is a single chat message in a channel.
//
// ParentID points at the thread root for replies. Threads are one level
// deep: a reply's parent never has a parent itself.
//
// int64 IDs: messages are the highest-volume table, a bigserial is smaller
// than a UUID and naturally ordered.
type Message struct {
	ID        int64     `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	ParentID  *int64    `json:"parent_id"`
	Edited    bool      `json:"edited"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectMessage is a one-to-one message outside any channel.
// Only the recipient may flip Read.
type DirectMessage struct {
	ID          int64      `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	Content     string     `json:"content"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TargetKind says whether a reaction or attachment hangs off a channel
// message or a direct message.
type TargetKind string

const (
	TargetMessage       TargetKind = "message"
	TargetDirectMessage TargetKind = "direct_message"
)

// Target identifies a channel message or a direct message.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id"`
}

// MessageTarget returns the Target of a channel message.
func MessageTarget(id int64) Target { return Target{Kind: TargetMessage, ID: id} }

// DirectMessageTarget returns the Target of a direct message.
func DirectMessageTarget(id int64) Target { return Target{Kind: TargetDirectMessage, ID: id} }

// Reaction is unique per (target, user, emoji).
type Reaction struct {
	ID        int64     `json:"id"`
	Target    Target    `json:"target"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is the metadata of a file attached to a message. The bytes live
// in the external blob store under StorageKey.
type Attachment struct {
	ID         int64     `json:"id"`
	Target     Target    `json:"target"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	StorageKey string    `json:"storage_key"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

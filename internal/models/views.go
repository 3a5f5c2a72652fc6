package models

import (
	"time"

	"github.com/google/uuid"
)

// Typed read-side projections. These are what the cache stores and what the
// API returns; each response shape has its own struct so the field list is
// fixed at compile time.

// UserProfile is the public view of a user. Cached under user_profile:{id}.
type UserProfile struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Bio         string     `json:"bio"`
	AvatarURL   string     `json:"avatar_url"`
	Status      UserStatus `json:"status"`
	LastSeen    time.Time  `json:"last_seen"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ProfileOf projects a User row into its public profile.
func ProfileOf(u *User) UserProfile {
	return UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		Status:      u.Status,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
	}
}

// OnlineStatus is the short-lived presence fact stored under user_online:{id}.
type OnlineStatus struct {
	UserID    uuid.UUID  `json:"user_id"`
	Status    UserStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WorkspaceSummary is one entry of a user's workspace list.
type WorkspaceSummary struct {
	Workspace
	MemberCount  int `json:"member_count"`
	ChannelCount int `json:"channel_count"`
}

// WorkspaceMemberView is a workspace member joined with its profile.
type WorkspaceMemberView struct {
	User     UserProfile `json:"user"`
	Role     Role        `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

// WorkspaceDetail is cached under workspace_detail:{id}.
type WorkspaceDetail struct {
	WorkspaceSummary
	Members []WorkspaceMemberView `json:"members"`
}

// ChannelSummary is one entry of channel_list:{workspaceId}. The cached list
// holds every channel of the workspace; callers filter private channels per
// actor before returning it.
type ChannelSummary struct {
	Channel
	MemberCount int `json:"member_count"`
}

// ChannelView is a ChannelSummary personalized for one actor.
type ChannelView struct {
	ChannelSummary
	IsMember bool `json:"is_member"`
}

// ChannelMemberView is a channel member joined with its profile.
type ChannelMemberView struct {
	User       UserProfile `json:"user"`
	JoinedAt   time.Time   `json:"joined_at"`
	LastReadAt *time.Time  `json:"last_read_at"`
}

// ReactionSummary aggregates the reactions of one emoji on one message.
type ReactionSummary struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"user_ids"`
}

// MessageView is a message with its reactions, attachments and reply count.
type MessageView struct {
	Message
	Reactions   []ReactionSummary `json:"reactions"`
	Attachments []Attachment      `json:"attachments"`
	ReplyCount  int               `json:"reply_count"`
}

// MessagePage is cached under channel_messages:{channelId}:page:{page}.
type MessagePage struct {
	ChannelID uuid.UUID     `json:"channel_id"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	HasMore   bool          `json:"has_more"`
	Messages  []MessageView `json:"messages"`
}

// DirectMessageView is a direct message with its reactions and attachments.
type DirectMessageView struct {
	DirectMessage
	Reactions   []ReactionSummary `json:"reactions"`
	Attachments []Attachment      `json:"attachments"`
}

// UnreadCounts is cached under unread_count:{userId}.
type UnreadCounts struct {
	UserID   uuid.UUID         `json:"user_id"`
	Direct   int               `json:"direct"`
	Channels map[uuid.UUID]int `json:"channels"`
	Total    int               `json:"total"`
}

// SummarizeReactions groups reactions by emoji, preserving first-seen order.
func SummarizeReactions(reactions []Reaction) []ReactionSummary {
	out := make([]ReactionSummary, 0)
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			index[r.Emoji] = len(out)
			out = append(out, ReactionSummary{Emoji: r.Emoji, UserIDs: make([]uuid.UUID, 0, 1)})
			i = len(out) - 1
		}
		out[i].Count++
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
	}
	return out
}

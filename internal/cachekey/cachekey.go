// Package cachekey derives the canonical cache key of every cached entity.
//
// Keys are "<family>:<id>[:...]" with ':' as the only separator. Each family
// has its own static prefix, so keys of different kinds never collide, and
// the same inputs always produce the same key.
package cachekey

import (
	"strconv"

	"github.com/google/uuid"
)

// Separator is reserved between key segments.
const Separator = ":"

// Family is the static prefix of a key kind. TTL policy is configured per family.
type Family string

const (
	UserProfile     Family = "user_profile"
	WorkspaceList   Family = "workspace_list"
	WorkspaceDetail Family = "workspace_detail"
	ChannelList     Family = "channel_list"
	ChannelMessages Family = "channel_messages"
	UserOnline      Family = "user_online"
	UnreadCount     Family = "unread_count"
)

// Families lists every family, in a stable order.
func Families() []Family {
	return []Family{
		UserProfile,
		WorkspaceList,
		WorkspaceDetail,
		ChannelList,
		ChannelMessages,
		UserOnline,
		UnreadCount,
	}
}

func join(f Family, parts ...string) string {
	key := string(f)
	for _, p := range parts {
		key += Separator + p
	}
	return key
}

// ForUserProfile returns user_profile:{userId}.
func ForUserProfile(userID uuid.UUID) string {
	return join(UserProfile, userID.String())
}

// ForWorkspaceList returns workspace_list:{userId}.
func ForWorkspaceList(userID uuid.UUID) string {
	return join(WorkspaceList, userID.String())
}

// ForWorkspaceDetail returns workspace_detail:{workspaceId}.
func ForWorkspaceDetail(workspaceID uuid.UUID) string {
	return join(WorkspaceDetail, workspaceID.String())
}

// ForChannelList returns channel_list:{workspaceId}.
func ForChannelList(workspaceID uuid.UUID) string {
	return join(ChannelList, workspaceID.String())
}

// ForChannelMessages returns channel_messages:{channelId}:page:{page}.
func ForChannelMessages(channelID uuid.UUID, page int) string {
	return join(ChannelMessages, channelID.String(), "page", strconv.Itoa(page))
}

// ChannelMessagesPrefix returns the prefix shared by every page of one
// channel's messages. The trailing separator keeps one channel's prefix from
// matching another channel whose id merely starts with the same characters.
func ChannelMessagesPrefix(channelID uuid.UUID) string {
	return join(ChannelMessages, channelID.String()) + Separator
}

// ForUserOnline returns user_online:{userId}.
func ForUserOnline(userID uuid.UUID) string {
	return join(UserOnline, userID.String())
}

// ForUnreadCount returns unread_count:{userId}.
func ForUnreadCount(userID uuid.UUID) string {
	return join(UnreadCount, userID.String())
}

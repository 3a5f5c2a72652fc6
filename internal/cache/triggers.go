package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/models"
)

// Invalidation triggers. Each one is the direct consequence of a mutation
// and only touches the keys that mutation can make stale.

// InvalidateProfile runs after a profile update. The detail of every
// workspace in workspaceIDs embeds the profile as a member row, so it goes too.
func (c *Coordinator) InvalidateProfile(ctx context.Context, userID uuid.UUID, workspaceIDs ...uuid.UUID) {
	keys := make([]string, 0, len(workspaceIDs)+1)
	keys = append(keys, cachekey.ForUserProfile(userID))
	for _, ws := range workspaceIDs {
		keys = append(keys, cachekey.ForWorkspaceDetail(ws))
	}
	c.Invalidate(ctx, keys...)
}

// SetOnlineStatus runs after a status change. The profile is dropped along
// with the workspace details that embed it, and the presence fact is
// written, not deleted: status is itself a cached, expiring value.
func (c *Coordinator) SetOnlineStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus, at time.Time, workspaceIDs ...uuid.UUID) {
	c.InvalidateProfile(ctx, userID, workspaceIDs...)
	c.TouchOnline(ctx, userID, status, at)
}

// TouchOnline rewrites the presence fact, restarting its TTL. Heartbeats use
// it directly since the profile has not changed.
func (c *Coordinator) TouchOnline(ctx context.Context, userID uuid.UUID, status models.UserStatus, at time.Time) {
	c.SetJSON(ctx, cachekey.ForUserOnline(userID), models.OnlineStatus{
		UserID:    userID,
		Status:    status,
		UpdatedAt: at,
	})
}

// OnlineStatus reads the presence fact. Absent means the TTL lapsed with no
// heartbeat, so the user is treated as offline.
func (c *Coordinator) OnlineStatus(ctx context.Context, userID uuid.UUID) (models.OnlineStatus, bool) {
	raw, ok := c.Get(ctx, cachekey.ForUserOnline(userID))
	if !ok {
		return models.OnlineStatus{UserID: userID, Status: models.StatusOffline}, false
	}
	var st models.OnlineStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		c.logger.Warn("presence entry undecodable", zap.Stringer("user_id", userID), zap.Error(err))
		return models.OnlineStatus{UserID: userID, Status: models.StatusOffline}, false
	}
	return st, true
}

// InvalidateChannelMessages drops every cached page of the channel.
func (c *Coordinator) InvalidateChannelMessages(ctx context.Context, channelID uuid.UUID) {
	c.InvalidatePrefix(ctx, cachekey.ChannelMessagesPrefix(channelID))
}

// InvalidateMembership runs after a workspace or channel membership change.
// It drops the workspace's channel list and detail plus the workspace list of
// each affected user. Other users' lists are left alone.
func (c *Coordinator) InvalidateMembership(ctx context.Context, workspaceID uuid.UUID, affected ...uuid.UUID) {
	keys := make([]string, 0, len(affected)+2)
	keys = append(keys, cachekey.ForChannelList(workspaceID), cachekey.ForWorkspaceDetail(workspaceID))
	for _, u := range affected {
		keys = append(keys, cachekey.ForWorkspaceList(u))
	}
	c.Invalidate(ctx, keys...)
}

// InvalidateWorkspace runs after a workspace's own fields change (or it is
// deleted). Every member's list embeds the workspace, so all of them go.
func (c *Coordinator) InvalidateWorkspace(ctx context.Context, workspaceID uuid.UUID, members []uuid.UUID) {
	c.InvalidateMembership(ctx, workspaceID, members...)
}

// InvalidateUnread drops the unread counters of users.
func (c *Coordinator) InvalidateUnread(ctx context.Context, users ...uuid.UUID) {
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = cachekey.ForUnreadCount(u)
	}
	c.Invalidate(ctx, keys...)
}

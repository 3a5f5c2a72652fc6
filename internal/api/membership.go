package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/workspace"
)

// MembershipHandler handles channel membership operations.
type MembershipHandler struct {
	svc    *workspace.Service
	logger *zap.Logger
}

func NewMembershipHandler(svc *workspace.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger}
}

// Join handles POST /v1/channels/:id/join
//
// Why separate "join" and "invite" endpoints?
//   - Semantics. Join is a user action on themselves; invite is a member
//     acting on someone else. They have different authorization rules
//     (private channels can be entered only by invitation).
//
// Joining twice is not an error: the response says whether anything changed.
func (h *MembershipHandler) Join(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	joined, err := h.svc.JoinChannel(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		writeError(c, h.logger, "join channel", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": joined})
}

// Leave handles POST /v1/channels/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.LeaveChannel(c.Request.Context(), middleware.GetUserID(c), channelID); err != nil {
		writeError(c, h.logger, "leave channel", err)
		return
	}
	// 204 No Content: success, no body to return.
	c.Status(http.StatusNoContent)
}

type inviteRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Invite handles POST /v1/channels/:id/members
func (h *MembershipHandler) Invite(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if !bindJSON(c, &req) {
		return
	}
	invitee, ok := parseUUID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	if err := h.svc.InviteToChannel(c.Request.Context(), middleware.GetUserID(c), channelID, invitee); err != nil {
		writeError(c, h.logger, "invite to channel", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/channels/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.svc.ChannelMembers(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		writeError(c, h.logger, "list channel members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// MarkRead handles POST /v1/channels/:id/read
func (h *MembershipHandler) MarkRead(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), middleware.GetUserID(c), channelID); err != nil {
		writeError(c, h.logger, "mark channel read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/workspace"
)

// ChannelHandler handles channel creation and lookup.
//
// Channels live under a workspace for creation and listing
// (/v1/workspaces/:id/channels) and are addressed directly by id after
// that (/v1/channels/:id). Channel ids are globally unique, so the
// workspace is not needed to find one.
type ChannelHandler struct {
	svc    *workspace.Service
	logger *zap.Logger
}

func NewChannelHandler(svc *workspace.Service, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{svc: svc, logger: logger}
}

// Create handles POST /v1/workspaces/:id/channels
//
// The body is workspace.CreateChannelInput directly; unlike the DB row it
// has no id, owner or timestamps, so clients can't set those.
func (h *ChannelHandler) Create(c *gin.Context) {
	workspaceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req workspace.CreateChannelInput
	if !bindJSON(c, &req) {
		return
	}
	ch, err := h.svc.CreateChannel(c.Request.Context(), middleware.GetUserID(c), workspaceID, req)
	if err != nil {
		writeError(c, h.logger, "create channel", err)
		return
	}
	// 201 Created, not 200 OK: a new resource was created.
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/workspaces/:id/channels
// Private channels appear only to their members.
func (h *ChannelHandler) List(c *gin.Context) {
	workspaceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	channels, err := h.svc.ListChannels(c.Request.Context(), middleware.GetUserID(c), workspaceID)
	if err != nil {
		writeError(c, h.logger, "list channels", err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

// GetByID handles GET /v1/channels/:id
func (h *ChannelHandler) GetByID(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ch, err := h.svc.GetChannel(c.Request.Context(), middleware.GetUserID(c), channelID)
	if err != nil {
		writeError(c, h.logger, "get channel", err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/messaging"
	"github.com/lalith-99/huddle/internal/middleware"
)

type MessageHandler struct {
	svc    *messaging.Service
	logger *zap.Logger
}

func NewMessageHandler(svc *messaging.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// Create handles POST /v1/channels/:id/messages
// A parent_id makes the message a thread reply.
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req messaging.SendInput
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.svc.Send(c.Request.Context(), middleware.GetUserID(c), channelID, req)
	if err != nil {
		writeError(c, h.logger, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/channels/:id/messages?page=1
//
// Page-based, not cursor-based: each page is one cache entry
// (channel_messages:{id}:page:{n}) shared by every member, and a new
// message drops all of them at once.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	result, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), channelID, page)
	if err != nil {
		writeError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req editMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.svc.Edit(c.Request.Context(), middleware.GetUserID(c), id, req.Content)
	if err != nil {
		writeError(c, h.logger, "edit message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		writeError(c, h.logger, "delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TogglePin handles POST /v1/messages/:id/pin
func (h *MessageHandler) TogglePin(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	msg, err := h.svc.TogglePin(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, "pin message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type reactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// React handles POST /v1/messages/:id/reactions
//
// Toggle: posting the same emoji again removes it. The response says which
// way it went, so clients don't need to track state.
func (h *MessageHandler) React(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req reactRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.React(c.Request.Context(), middleware.GetUserID(c), id, req.Emoji)
	if err != nil {
		writeError(c, h.logger, "react to message", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Thread handles GET /v1/messages/:id/thread
func (h *MessageHandler) Thread(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	replies, err := h.svc.Thread(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, "list thread", err)
		return
	}
	c.JSON(http.StatusOK, replies)
}

// Search handles GET /v1/search/messages?q=
func (h *MessageHandler) Search(c *gin.Context) {
	found, err := h.svc.Search(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, "search messages", err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// Unread handles GET /v1/unread
func (h *MessageHandler) Unread(c *gin.Context) {
	counts, err := h.svc.Unread(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, "count unread", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/messaging"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
)

// DirectHandler handles one-to-one messages and attachments.
type DirectHandler struct {
	svc    *messaging.Service
	logger *zap.Logger
}

func NewDirectHandler(svc *messaging.Service, logger *zap.Logger) *DirectHandler {
	return &DirectHandler{svc: svc, logger: logger}
}

type directRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send handles POST /v1/dms/:user_id
func (h *DirectHandler) Send(c *gin.Context) {
	recipient, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req directRequest
	if !bindJSON(c, &req) {
		return
	}
	dm, err := h.svc.SendDirect(c.Request.Context(), middleware.GetUserID(c), recipient, req.Content)
	if err != nil {
		writeError(c, h.logger, "send direct message", err)
		return
	}
	c.JSON(http.StatusCreated, dm)
}

// Conversation handles GET /v1/dms/:user_id?before=123&limit=50
//
// Cursor-based pagination:
//   - "before" = message ID. "Give me messages older than this." 0 = latest.
//   - "limit"  = how many to return. Default 50, capped at 100 by the service.
func (h *DirectHandler) Conversation(c *gin.Context) {
	partner, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var before int64
	if b := c.Query("before"); b != "" {
		var err error
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}
	limit, ok := intQuery(c, "limit", messaging.DefaultPageSize)
	if !ok {
		return
	}
	dms, err := h.svc.Conversation(c.Request.Context(), middleware.GetUserID(c), partner, before, limit)
	if err != nil {
		writeError(c, h.logger, "list conversation", err)
		return
	}
	c.JSON(http.StatusOK, dms)
}

// Conversations handles GET /v1/dms
func (h *DirectHandler) Conversations(c *gin.Context) {
	partners, err := h.svc.Conversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, "list conversations", err)
		return
	}
	c.JSON(http.StatusOK, partners)
}

// MarkRead handles POST /v1/direct-messages/:id/read
func (h *DirectHandler) MarkRead(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	dm, err := h.svc.MarkDirectRead(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, "mark direct message read", err)
		return
	}
	c.JSON(http.StatusOK, dm)
}

// React handles POST /v1/direct-messages/:id/reactions
func (h *DirectHandler) React(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req reactRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.ReactDirect(c.Request.Context(), middleware.GetUserID(c), id, req.Emoji)
	if err != nil {
		writeError(c, h.logger, "react to direct message", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type attachRequest struct {
	messaging.AttachmentInput
	TargetKind string `json:"target_kind" binding:"required"`
	TargetID   int64  `json:"target_id" binding:"required"`
}

// Attach handles POST /v1/attachments
//
// Only metadata is recorded. The bytes are uploaded to the file store
// first and referenced here by storage_key.
func (h *DirectHandler) Attach(c *gin.Context) {
	var req attachRequest
	if !bindJSON(c, &req) {
		return
	}
	target := models.Target{Kind: models.TargetKind(req.TargetKind), ID: req.TargetID}
	a, err := h.svc.Attach(c.Request.Context(), middleware.GetUserID(c), target, req.AttachmentInput)
	if err != nil {
		writeError(c, h.logger, "attach file", err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// MyUploads handles GET /v1/attachments/mine
func (h *DirectHandler) MyUploads(c *gin.Context) {
	list, err := h.svc.MyUploads(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, "list uploads", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

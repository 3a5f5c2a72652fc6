package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/workspace"
)

// WorkspaceHandler handles workspaces and their member lists.
//
// Handlers stay thin: parse, call the service, map the error. Authorization
// and cache invalidation live in the workspace service so every caller gets
// them, not only HTTP.
type WorkspaceHandler struct {
	svc    *workspace.Service
	logger *zap.Logger
}

func NewWorkspaceHandler(svc *workspace.Service, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc, logger: logger}
}

// Create handles POST /v1/workspaces
// The caller becomes the owner.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req workspace.CreateWorkspaceInput
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.svc.CreateWorkspace(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, h.logger, "create workspace", err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

// List handles GET /v1/workspaces
func (h *WorkspaceHandler) List(c *gin.Context) {
	list, err := h.svc.ListWorkspaces(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, "list workspaces", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/workspaces/:id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.svc.GetWorkspace(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, "get workspace", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Update handles PATCH /v1/workspaces/:id
func (h *WorkspaceHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req workspace.UpdateWorkspaceInput
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.svc.UpdateWorkspace(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		writeError(c, h.logger, "update workspace", err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// Delete handles DELETE /v1/workspaces/:id
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteWorkspace(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		writeError(c, h.logger, "delete workspace", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/workspaces/:id/members
func (h *WorkspaceHandler) ListMembers(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, "list workspace members", err)
		return
	}
	c.JSON(http.StatusOK, members)
}

type addMemberRequest struct {
	UserID string      `json:"user_id" binding:"required"`
	Role   models.Role `json:"role"`
}

// AddMember handles POST /v1/workspaces/:id/members
// Role defaults to "member". "owner" is never assignable.
func (h *WorkspaceHandler) AddMember(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := parseUUID(c, "user_id", req.UserID)
	if !ok {
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), middleware.GetUserID(c), id, userID, req.Role)
	if err != nil {
		writeError(c, h.logger, "add workspace member", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// RemoveMember handles DELETE /v1/workspaces/:id/members/:user_id
func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), middleware.GetUserID(c), id, target); err != nil {
		writeError(c, h.logger, "remove workspace member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// UpdateMemberRole handles PUT /v1/workspaces/:id/members/:user_id/role
func (h *WorkspaceHandler) UpdateMemberRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.svc.UpdateMemberRole(c.Request.Context(), middleware.GetUserID(c), id, target, req.Role)
	if err != nil {
		writeError(c, h.logger, "update member role", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

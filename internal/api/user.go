package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/users"
)

// UserHandler handles profile, status and search.
type UserHandler struct {
	users  *users.Service
	logger *zap.Logger
}

func NewUserHandler(svc *users.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: svc, logger: logger}
}

// GetMe handles GET /v1/users/me
//
// Why /users/me and not /users/:id?
//   - The client doesn't need to know its own UUID to fetch itself.
//   - The profile is served through the user_profile cache either way.
func (h *UserHandler) GetMe(c *gin.Context) {
	profile, err := h.users.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, "get profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Pointers distinguish "not sent" from "set to empty".
type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
}

// UpdateMe handles PATCH /v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), repository.ProfileUpdate{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeError(c, h.logger, "update profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword handles POST /v1/users/me/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, "change password", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusRequest struct {
	Status models.UserStatus `json:"status" binding:"required"`
}

// SetStatus handles PUT /v1/users/me/status
func (h *UserHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.users.SetStatus(c.Request.Context(), middleware.GetUserID(c), req.Status)
	if err != nil {
		writeError(c, h.logger, "set status", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Online handles GET /v1/users/:id/online
func (h *UserHandler) Online(c *gin.Context) {
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.users.Online(c.Request.Context(), userID))
}

// Search handles GET /v1/users/search?q=
// Only users sharing a workspace with the caller are returned.
func (h *UserHandler) Search(c *gin.Context) {
	found, err := h.users.Search(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, "search users", err)
		return
	}
	c.JSON(http.StatusOK, found)
}

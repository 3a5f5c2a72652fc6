package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/users"
)

// TokenIssuer is the part of *auth.Issuer the handlers need.
type TokenIssuer interface {
	Generate(userID uuid.UUID, email string) (string, error)
}

// AuthHandler handles signup and login, the only PUBLIC endpoints.
// They don't go through AuthMiddleware because the caller doesn't have
// a token yet (that's what these endpoints produce).
type AuthHandler struct {
	users  *users.Service
	tokens TokenIssuer
	logger *zap.Logger
}

func NewAuthHandler(svc *users.Service, tokens TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: svc, tokens: tokens, logger: logger}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return.
// The client stores the token and sends it as "Authorization: Bearer <token>".
type authResponse struct {
	Token string             `json:"token"`
	User  models.UserProfile `json:"user"`
}

// Signup handles POST /v1/auth/signup
//
// Registration is rate limited per client IP inside the users service, so
// a signup burst from one address gets 429 before any bcrypt work happens.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Signup(c.Request.Context(), users.SignupInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, c.ClientIP())
	if err != nil {
		writeError(c, h.logger, "signup", err)
		return
	}

	h.respond(c, http.StatusCreated, user)
}

// Login handles POST /v1/auth/login
//
// Unknown email and wrong password return the same 401. Saying which one
// failed would tell an attacker which emails are registered.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}

	h.respond(c, http.StatusOK, user)
}

func (h *AuthHandler) respond(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.Generate(user.ID, user.Email)
	if err != nil {
		writeError(c, h.logger, "issue token", err)
		return
	}
	c.JSON(status, authResponse{Token: token, User: models.ProfileOf(user)})
}

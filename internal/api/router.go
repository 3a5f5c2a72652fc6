package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/messaging"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/users"
	"github.com/lalith-99/huddle/internal/workspace"
)

// Deps is everything the router needs. Metrics and Health are optional.
type Deps struct {
	Users     *users.Service
	Workspace *workspace.Service
	Messaging *messaging.Service
	Tokens    interface {
		TokenIssuer
		middleware.TokenParser
	}
	Limiter middleware.Checker
	Logger  *zap.Logger

	Metrics http.Handler
	Health  func(context.Context) error
}

// NewRouter builds the HTTP surface.
func NewRouter(d Deps) *gin.Engine {
	srv := gin.New()
	srv.Use(middleware.RequestLogger(d.Logger), middleware.Recovery(d.Logger))

	// Health check is PUBLIC and not rate limited. Load balancers hit it
	// constantly; if it required auth they couldn't health-check us.
	srv.GET("/v1/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		srv.GET("/metrics", gin.WrapH(d.Metrics))
	}

	limit := middleware.RateLimit(d.Limiter, d.Logger)

	authH := NewAuthHandler(d.Users, d.Tokens, d.Logger)
	public := srv.Group("/v1/auth", limit)
	public.POST("/signup", authH.Signup)
	public.POST("/login", authH.Login)

	// Every other /v1 route requires a valid token. Auth runs first so the
	// limiter can key on the user instead of the IP.
	v1 := srv.Group("/v1", middleware.AuthMiddleware(d.Tokens), limit)

	userH := NewUserHandler(d.Users, d.Logger)
	v1.GET("/users/me", userH.GetMe)
	v1.PATCH("/users/me", userH.UpdateMe)
	v1.POST("/users/me/password", userH.ChangePassword)
	v1.PUT("/users/me/status", userH.SetStatus)
	v1.GET("/users/search", userH.Search)
	v1.GET("/users/:id/online", userH.Online)

	// The socket is long-lived: it is authenticated but not rate limited,
	// and heartbeats inside it don't count as requests.
	presenceH := NewPresenceHandler(d.Users, d.Logger)
	srv.GET("/v1/presence/ws", middleware.AuthMiddleware(d.Tokens), presenceH.Serve)

	wsH := NewWorkspaceHandler(d.Workspace, d.Logger)
	v1.POST("/workspaces", wsH.Create)
	v1.GET("/workspaces", wsH.List)
	v1.GET("/workspaces/:id", wsH.Get)
	v1.PATCH("/workspaces/:id", wsH.Update)
	v1.DELETE("/workspaces/:id", wsH.Delete)
	v1.GET("/workspaces/:id/members", wsH.ListMembers)
	v1.POST("/workspaces/:id/members", wsH.AddMember)
	v1.DELETE("/workspaces/:id/members/:user_id", wsH.RemoveMember)
	v1.PUT("/workspaces/:id/members/:user_id/role", wsH.UpdateMemberRole)

	chH := NewChannelHandler(d.Workspace, d.Logger)
	v1.POST("/workspaces/:id/channels", chH.Create)
	v1.GET("/workspaces/:id/channels", chH.List)
	v1.GET("/channels/:id", chH.GetByID)

	memberH := NewMembershipHandler(d.Workspace, d.Logger)
	v1.POST("/channels/:id/join", memberH.Join)
	v1.POST("/channels/:id/leave", memberH.Leave)
	v1.GET("/channels/:id/members", memberH.ListMembers)
	v1.POST("/channels/:id/members", memberH.Invite)
	v1.POST("/channels/:id/read", memberH.MarkRead)

	msgH := NewMessageHandler(d.Messaging, d.Logger)
	v1.POST("/channels/:id/messages", msgH.Create)
	v1.GET("/channels/:id/messages", msgH.List)
	v1.PATCH("/messages/:id", msgH.Edit)
	v1.DELETE("/messages/:id", msgH.Delete)
	v1.POST("/messages/:id/pin", msgH.TogglePin)
	v1.POST("/messages/:id/reactions", msgH.React)
	v1.GET("/messages/:id/thread", msgH.Thread)
	v1.GET("/search/messages", msgH.Search)
	v1.GET("/unread", msgH.Unread)

	dmH := NewDirectHandler(d.Messaging, d.Logger)
	v1.GET("/dms", dmH.Conversations)
	v1.POST("/dms/:user_id", dmH.Send)
	v1.GET("/dms/:user_id", dmH.Conversation)
	v1.POST("/direct-messages/:id/read", dmH.MarkRead)
	v1.POST("/direct-messages/:id/reactions", dmH.React)
	v1.POST("/attachments", dmH.Attach)
	v1.GET("/attachments/mine", dmH.MyUploads)

	return srv
}

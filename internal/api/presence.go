package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/users"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next frame or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Heartbeat frames are tiny; anything larger is a misbehaving client.
	maxFrameSize = 512
)

// PresenceHandler keeps user_online fresh while a client holds a socket open.
//
// Every frame the client sends is a heartbeat: the server refreshes the
// presence entry and answers with the current OnlineStatus as JSON. Closing
// the socket does not mark the user offline; the entry simply lapses after
// its TTL, which also covers clients that vanish without a close frame.
type PresenceHandler struct {
	users    *users.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewPresenceHandler(svc *users.Service, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		users:  svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth is the bearer token, not cookies, so cross-origin
			// handshakes carry no ambient credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /v1/presence/ws
func (h *PresenceHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("presence upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	log := h.logger.With(zap.Stringer("user_id", userID))

	// gorilla allows one concurrent writer; the ping loop and the read loop
	// both write.
	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return fn()
	}

	if err := write(func() error { return conn.WriteJSON(h.users.Heartbeat(ctx, userID)) }); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("presence socket closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		status := h.users.Heartbeat(ctx, userID)
		if err := write(func() error { return conn.WriteJSON(status) }); err != nil {
			return
		}
	}
}

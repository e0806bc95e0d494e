package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/market-bridge/internal/notify"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StreamHandler upgrades clients to a WebSocket live channel
type StreamHandler struct {
	logger   *slog.Logger
	channels ChannelRegistry
	settings WebSocketSettings
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler instance
func NewStreamHandler(deps *Dependencies) *StreamHandler {
	h := &StreamHandler{
		logger:   deps.Logger,
		channels: deps.Channels,
		settings: deps.WebSocket,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin allows every origin unless an allow-list is configured
func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if len(h.settings.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.settings.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Connect handles GET /ws
// The client key is the client_key query parameter, else the caller's address.
// A newer connection for the same key replaces the older one.
func (h *StreamHandler) Connect(c *gin.Context) {
	key := clientKey(c, c.Query("client_key"), "", true)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			slog.String("client_key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	ch := notify.NewWSChannel(conn, h.settings.WriteWait)
	h.channels.Register(key, ch)

	h.logger.Info("WebSocket client connected", slog.String("client_key", key))

	ch.Serve(h.settings.PingInterval, h.settings.PongWait)

	h.channels.Release(key, ch)
	_ = ch.Close()

	h.logger.Info("WebSocket client disconnected", slog.String("client_key", key))
}

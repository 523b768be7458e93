package handlers

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/ws"
)

// WebSocketHandler opens persistent chat connections.
type WebSocketHandler struct {
	supervisor *ws.Supervisor
	log        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(supervisor *ws.Supervisor, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{supervisor: supervisor, log: log}
}

// Connect handles GET /ws.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	reason, err := h.supervisor.HandleConnection(c.Writer, c.Request)
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		h.log.Debug("WebSocket connection refused", "remote_addr", c.Request.RemoteAddr)
	case err != nil:
		h.log.Warn("WebSocket connection failed", "remote_addr", c.Request.RemoteAddr, "error", err)
	default:
		h.log.Debug("WebSocket connection finished", "reason", reason)
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.Connect)
}

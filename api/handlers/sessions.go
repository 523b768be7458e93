package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/session"
	"github.com/chatty-relay/backend/internal/ws"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SessionHandler exposes the session ledger.
type SessionHandler struct {
	sessions *session.Manager
	hub      *ws.Hub
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Manager, hub *ws.Hub) *SessionHandler {
	return &SessionHandler{sessions: sessions, hub: hub}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID          string `json:"id"`
	Identity    string `json:"identity"`
	State       string `json:"state"`
	CloseReason string `json:"closeReason,omitempty"`
	RemoteAddr  string `json:"remoteAddr,omitempty"`
	Duration    string `json:"duration"`
	OpenedAt    string `json:"openedAt"`
	ClosedAt    string `json:"closedAt,omitempty"`
}

// ActiveSessionsResponse lists live sessions next to the registry size.
type ActiveSessionsResponse struct {
	Sessions    []*SessionResponse `json:"sessions"`
	Subscribers int                `json:"subscribers"`
}

// SessionStatsResponse counts ledger records per state.
type SessionStatsResponse struct {
	Active      int `json:"active"`
	Closing     int `json:"closing"`
	Closed      int `json:"closed"`
	Subscribers int `json:"subscribers"`
}

// toSessionResponse converts a model.Session to SessionResponse.
func toSessionResponse(s *model.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:          s.ID,
		Identity:    s.Identity,
		State:       string(s.State),
		CloseReason: string(s.CloseReason),
		RemoteAddr:  s.RemoteAddr,
		Duration:    formatDuration(s.Duration()),
		OpenedAt:    s.OpenedAt.Format(time.RFC3339),
	}
	if s.ClosedAt != nil {
		resp.ClosedAt = s.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

func toSessionResponses(sessions []*model.Session) []*SessionResponse {
	out := make([]*SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = toSessionResponse(s)
	}
	return out
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// List handles GET /api/sessions - lists ledger records, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, CodeValidationError, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, CodeInternalError, "Failed to list sessions: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponses(sessions))
}

// Active handles GET /api/sessions/active.
func (h *SessionHandler) Active(c *gin.Context) {
	c.JSON(http.StatusOK, ActiveSessionsResponse{
		Sessions:    toSessionResponses(h.sessions.Active()),
		Subscribers: h.hub.Len(),
	})
}

// Get handles GET /api/sessions/:id - a live session or a ledger record.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, CodeSessionNotFound, "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, CodeInternalError, "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// Stats handles GET /api/sessions/stats.
func (h *SessionHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	resp := SessionStatsResponse{Subscribers: h.hub.Len()}

	for state, dst := range map[model.SessionState]*int{
		model.SessionStateActive:  &resp.Active,
		model.SessionStateClosing: &resp.Closing,
		model.SessionStateClosed:  &resp.Closed,
	} {
		n, err := h.sessions.CountByState(ctx, state)
		if err != nil {
			sendError(c, http.StatusInternalServerError, CodeInternalError, "Failed to count sessions: "+err.Error())
			return
		}
		*dst = n
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers the session routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/active", h.Active)
		sessions.GET("/stats", h.Stats)
		sessions.GET("/:id", h.Get)
	}
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/auth"
	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/ws"
)

// AuthHandler issues identity tokens.
type AuthHandler struct {
	binder auth.Binder
	log    *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(binder auth.Binder, log *slog.Logger) *AuthHandler {
	return &AuthHandler{binder: binder, log: log}
}

// Login handles POST /auth.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidationError, "Invalid request body: "+err.Error())
		return
	}

	token, err := h.binder.Issue(req.Username, req.Password)
	if err != nil {
		sendError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid username or password")
		return
	}

	h.log.Info("Token issued", "identity", req.Username)

	resp := success("Authentication successful")
	resp.Token = token
	c.JSON(http.StatusOK, resp)
}

// Logout handles POST /auth/logout and revokes the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.binder.Revoke(ws.TokenFromRequest(c.Request))
	h.log.Info("Token revoked", "identity", getIdentity(c))
	c.JSON(http.StatusOK, success("Logged out"))
}

// RegisterRoutes registers the public auth routes.
func (h *AuthHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/auth", h.Login)
}

// RegisterAuthorizedRoutes registers the routes that need an identity.
func (h *AuthHandler) RegisterAuthorizedRoutes(r gin.IRouter) {
	r.POST("/auth/logout", h.Logout)
}

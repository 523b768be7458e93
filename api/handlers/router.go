package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/auth"
	"github.com/chatty-relay/backend/internal/session"
	"github.com/chatty-relay/backend/internal/ws"
)

// Deps are the components the HTTP surface is built on.
type Deps struct {
	Service    *ws.Service
	Supervisor *ws.Supervisor
	Binder     auth.Binder
	Sessions   *session.Manager
	Log        *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(d.Log))
	r.Use(CORS())

	r.GET("/status", Status)
	r.GET("/health", Status)

	authHandler := NewAuthHandler(d.Binder, d.Log)
	authHandler.RegisterRoutes(r)
	NewWebSocketHandler(d.Supervisor, d.Log).RegisterRoutes(r)

	authorized := r.Group("", RequireIdentity(d.Binder))
	authHandler.RegisterAuthorizedRoutes(authorized)
	NewChatHandler(d.Service).RegisterRoutes(authorized)

	api := r.Group("/api", RequireIdentity(d.Binder))
	NewSessionHandler(d.Sessions, d.Service.Hub()).RegisterRoutes(api)

	return r
}

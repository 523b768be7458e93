package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/auth"
	"github.com/chatty-relay/backend/internal/ws"
)

// identityKey is the gin context key RequireIdentity stores the caller under.
const identityKey = "identity"

// slowRequest is the latency above which a request is logged at warn.
const slowRequest = time.Second

// RequireIdentity resolves the caller's token to an identity and aborts with
// 401 when it cannot. The token is read from the Authorization header, with
// or without a Bearer prefix, falling back to the token query parameter.
func RequireIdentity(binder auth.Binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := binder.Resolve(ws.TokenFromRequest(c.Request))
		if err != nil {
			sendError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid or missing token")
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// getIdentity extracts the identity set by RequireIdentity.
func getIdentity(c *gin.Context) string {
	if identity, exists := c.Get(identityKey); exists {
		if id, ok := identity.(string); ok {
			return id
		}
	}
	return ""
}

// CORS returns a permissive CORS middleware.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger writes one record per request.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", attrs...)
		case status >= http.StatusBadRequest:
			log.Info("Request rejected", attrs...)
		case latency > slowRequest:
			log.Warn("Slow request", attrs...)
		default:
			log.Debug("Request served", attrs...)
		}
	}
}

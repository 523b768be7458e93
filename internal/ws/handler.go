package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chatty-relay/backend/internal/auth"
	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 8192
)

// SupervisorConfig configures connection handling.
type SupervisorConfig struct {
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	// PingPeriod must be less than PongWait; it defaults to 9/10 of it.
	PingPeriod     time.Duration
	// RateLimit caps inbound chat lines per second and session. Zero
	// disables the limit.
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// Supervisor accepts persistent connections, binds them to an identity and
// drives their sessions to completion.
type Supervisor struct {
	service  *Service
	binder   auth.Binder
	sessions *session.Manager
	upgrader websocket.Upgrader
	cfg      SupervisorConfig
	log      *slog.Logger
}

// NewSupervisor creates a new Supervisor.
func NewSupervisor(service *Service, binder auth.Binder, sessions *session.Manager, cfg SupervisorConfig, log *slog.Logger) *Supervisor {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	origins := NewOriginChecker(cfg.AllowedOrigins)
	return &Supervisor{
		service:  service,
		binder:   binder,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origins.Check(r) {
					return true
				}
				log.Warn("Blocked connection from disallowed origin", "origin", r.Header.Get("Origin"))
				return false
			},
		},
		cfg: cfg,
		log: log,
	}
}

// authenticate resolves a presented token to an identity.
func (sv *Supervisor) authenticate(token string) (string, error) {
	identity, err := sv.binder.Resolve(token)
	if err != nil {
		return "", model.ErrUnauthorized
	}
	return identity, nil
}

// upgrade switches an HTTP request to the persistent channel. On failure the
// upgrader has already replied to the client.
func (sv *Supervisor) upgrade(w http.ResponseWriter, r *http.Request) (Transport, error) {
	conn, err := sv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn, sv.cfg.MaxMessageSize, sv.cfg.WriteWait, sv.cfg.PongWait), nil
}

// HandleConnection authenticates r and, on success, upgrades it to the
// persistent channel and serves it until it ends. The token comes from the
// Authorization header or the token query parameter; replay=true asks for
// the history ahead of live messages. An unauthorized request is answered
// with 401 before any upgrade and is never registered.
func (sv *Supervisor) HandleConnection(w http.ResponseWriter, r *http.Request) (model.CloseReason, error) {
	remoteAddr := r.RemoteAddr
	state := sv.advance(model.SessionStateConnecting, model.SessionStateAuthenticating, remoteAddr)

	identity, err := sv.authenticate(TokenFromRequest(r))
	if err != nil {
		sv.advance(state, model.SessionStateClosed, remoteAddr)
		writeUnauthorized(w)
		return "", err
	}

	t, err := sv.upgrade(w, r)
	if err != nil {
		// The upgrader has already replied
		sv.advance(state, model.SessionStateClosed, remoteAddr)
		return "", err
	}
	sv.advance(state, model.SessionStateActive, remoteAddr)

	return sv.serve(r.Context(), t, identity, r.URL.Query().Get("replay") == "true")
}

// serve runs an authenticated connection until either pump stops, then
// unsubscribes it and closes the transport. It blocks for the lifetime of the
// connection and returns why it ended.
func (sv *Supervisor) serve(ctx context.Context, t Transport, identity string, replay bool) (model.CloseReason, error) {
	serviceCtx, done, ok := sv.service.track()
	if !ok {
		t.Close()
		return model.CloseReasonServerShutdown, model.ErrServiceClosed
	}
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(serviceCtx, cancel)
	defer stop()

	rec := sv.sessions.Open(ctx, identity, t.RemoteAddr())
	log := sv.log.With("session_id", rec.ID, "identity", identity)

	sub, backlog, err := sv.service.Attach(rec.ID, replay)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateSession) {
			log.Error("Session id already subscribed", "error", err)
		}
		t.Close()
		sv.sessions.Close(ctx, rec.ID, model.CloseReasonServerShutdown)
		return model.CloseReasonServerShutdown, err
	}

	log.Info("Session active", "remote_addr", t.RemoteAddr(), "replay", len(backlog))

	s := &Session{
		id:         rec.ID,
		identity:   identity,
		transport:  t,
		sub:        sub,
		service:    sv.service,
		limiter:    sv.newLimiter(),
		pingPeriod: sv.cfg.PingPeriod,
		log:        log,
	}
	reason := s.Run(ctx, backlog)

	sv.sessions.MarkClosing(ctx, rec.ID)
	sv.service.Detach(rec.ID)
	t.Close()
	sv.sessions.Close(ctx, rec.ID, reason)

	log.Info("Session closed", "reason", reason)
	return reason, nil
}

func (sv *Supervisor) newLimiter() *rate.Limiter {
	if sv.cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(sv.cfg.RateLimit), sv.cfg.RateBurst)
}

func (sv *Supervisor) advance(from, to model.SessionState, remoteAddr string) model.SessionState {
	if !from.CanTransition(to) {
		sv.log.Error("Illegal session transition", "from", from, "to", to)
		return from
	}
	sv.log.Debug("Connection state", "remote_addr", remoteAddr, "from", from, "to", to)
	return to
}

// TokenFromRequest returns the Authorization header, falling back to the
// token query parameter for clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		return header
	}
	return r.URL.Query().Get("token")
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": "Invalid or missing token",
		},
	})
}

package model

import (
	"time"
)

// SessionState represents where a persistent connection is in its lifecycle.
type SessionState string

const (
	SessionStateConnecting     SessionState = "connecting"
	SessionStateAuthenticating SessionState = "authenticating"
	SessionStateActive         SessionState = "active"
	SessionStateClosing        SessionState = "closing"
	SessionStateClosed         SessionState = "closed"
)

// CanTransition reports whether moving from s to next is a legal step.
// Closed is terminal.
func (s SessionState) CanTransition(next SessionState) bool {
	switch s {
	case SessionStateConnecting:
		return next == SessionStateAuthenticating
	case SessionStateAuthenticating:
		return next == SessionStateActive || next == SessionStateClosed
	case SessionStateActive:
		return next == SessionStateClosing
	case SessionStateClosing:
		return next == SessionStateClosed
	default:
		return false
	}
}

// CloseReason explains why a session ended.
type CloseReason string

const (
	CloseReasonClientClosed   CloseReason = "client_closed"
	CloseReasonReadError      CloseReason = "read_error"
	CloseReasonWriteError     CloseReason = "write_error"
	CloseReasonDroppedSlow    CloseReason = "dropped_slow"
	CloseReasonServerShutdown CloseReason = "server_shutdown"
)

// Session is the ledger record for one persistent connection.
type Session struct {
	ID          string       `json:"id"`
	Identity    string       `json:"identity"`
	State       SessionState `json:"state"`
	CloseReason CloseReason  `json:"closeReason,omitempty"`
	RemoteAddr  string       `json:"remoteAddr,omitempty"`
	OpenedAt    time.Time    `json:"openedAt"`
	ClosedAt    *time.Time   `json:"closedAt,omitempty"`
}

// Duration returns how long the session has been (or was) open.
func (s *Session) Duration() time.Duration {
	if s.ClosedAt != nil {
		return s.ClosedAt.Sub(s.OpenedAt)
	}
	return time.Since(s.OpenedAt)
}

// AuthRequest is the body of POST /auth.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate validates the auth request.
func (r *AuthRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return ErrInvalidCredentials
	}
	return nil
}

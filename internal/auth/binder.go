// Package auth binds presented credentials to chat identities.
package auth

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chatty-relay/backend/internal/model"
)

// Binder issues tokens for credentials and resolves tokens back to the
// identity they were issued for.
type Binder interface {
	Issue(username, password string) (string, error)
	Resolve(token string) (string, error)
	// Revoke invalidates token. Unknown tokens are ignored.
	Revoke(token string)
}

const tokenPrefix = "tok_"

// TokenBinder is an in-memory Binder. It does not verify passwords; any
// non-empty username/password pair is accepted. Reissuing a token for a
// username revokes the previous one.
type TokenBinder struct {
	mu         sync.Mutex
	byToken    map[string]string
	byIdentity map[string]string
}

// NewTokenBinder creates an empty TokenBinder.
func NewTokenBinder() *TokenBinder {
	return &TokenBinder{
		byToken:    make(map[string]string),
		byIdentity: make(map[string]string),
	}
}

// Issue returns a fresh token for username.
func (b *TokenBinder) Issue(username, password string) (string, error) {
	req := model.AuthRequest{Username: strings.TrimSpace(username), Password: password}
	if err := req.Validate(); err != nil {
		return "", err
	}

	token := tokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")

	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.byIdentity[req.Username]; ok {
		delete(b.byToken, old)
	}
	b.byToken[token] = req.Username
	b.byIdentity[req.Username] = token
	return token, nil
}

// Resolve returns the identity bound to token.
func (b *TokenBinder) Resolve(token string) (string, error) {
	token = StripBearer(token)
	if token == "" {
		return "", model.ErrUnauthorized
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	identity, ok := b.byToken[token]
	if !ok {
		return "", model.ErrUnauthorized
	}
	return identity, nil
}

// Revoke invalidates token. Unknown tokens are ignored.
func (b *TokenBinder) Revoke(token string) {
	token = StripBearer(token)

	b.mu.Lock()
	defer b.mu.Unlock()

	if identity, ok := b.byToken[token]; ok {
		delete(b.byToken, token)
		delete(b.byIdentity, identity)
	}
}

// StripBearer removes an optional "Bearer " scheme from an Authorization value.
func StripBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}

// Package session keeps the ledger of persistent chat connections: which are
// live right now and how every past one ended.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/repository"
)

// ledgerTimeout bounds each ledger write so a slow disk never holds up a session.
const ledgerTimeout = 2 * time.Second

// Manager allocates session ids and records session lifecycle transitions.
// Ledger writes are best effort: failures are logged and never fail the
// caller.
type Manager struct {
	repo *repository.SessionRepository
	log  *slog.Logger

	mu       sync.RWMutex
	seq      uint64
	sessions map[string]*entry
}

type entry struct {
	session *model.Session
	seq     uint64
}

// NewManager creates a new session manager. repo may be nil, in which case
// only live sessions are tracked.
func NewManager(repo *repository.SessionRepository, log *slog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

// Open allocates a new session for identity in the active state.
func (m *Manager) Open(ctx context.Context, identity, remoteAddr string) *model.Session {
	sess := &model.Session{
		ID:         uuid.New().String(),
		Identity:   identity,
		State:      model.SessionStateActive,
		RemoteAddr: remoteAddr,
		OpenedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.seq++
	m.sessions[sess.ID] = &entry{session: sess, seq: m.seq}
	rec := copySession(sess)
	m.mu.Unlock()

	if m.repo != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
		defer cancel()
		if err := m.repo.Create(ctx, rec); err != nil {
			m.log.Warn("Failed to record session", "session_id", rec.ID, "error", err)
		}
	}

	return rec
}

// MarkClosing records that a session has started tearing down.
func (m *Manager) MarkClosing(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && e.session.State.CanTransition(model.SessionStateClosing) {
		e.session.State = model.SessionStateClosing
	} else {
		ok = false
	}
	m.mu.Unlock()

	if !ok || m.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := m.repo.UpdateState(ctx, id, model.SessionStateClosing); err != nil {
		m.log.Warn("Failed to record session state", "session_id", id, "error", err)
	}
}

// Close records the terminal state of a session. Closing an unknown or
// already closed session is a no-op.
func (m *Manager) Close(ctx context.Context, id string, reason model.CloseReason) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok || m.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := m.repo.MarkClosed(ctx, id, reason, time.Now().UTC()); err != nil {
		m.log.Warn("Failed to record session close", "session_id", id, "error", err)
	}
}

// Get returns a live session, or falls back to the ledger.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	var sess *model.Session
	if ok {
		sess = copySession(e.session)
	}
	m.mu.RUnlock()

	if ok {
		return sess, nil
	}
	if m.repo == nil {
		return nil, model.ErrSessionNotFound
	}
	return m.repo.GetByID(ctx, id)
}

// Active returns the live sessions, oldest first.
func (m *Manager) Active() []*model.Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, &entry{session: copySession(e.session), seq: e.seq})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*model.Session, len(entries))
	for i, e := range entries {
		out[i] = e.session
	}
	return out
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountByState returns how many sessions are in state. Without a ledger only
// live sessions are counted.
func (m *Manager) CountByState(ctx context.Context, state model.SessionState) (int, error) {
	if m.repo != nil {
		return m.repo.CountByState(ctx, state)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.sessions {
		if e.session.State == state {
			n++
		}
	}
	return n, nil
}

// List returns up to limit ledger records, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*model.Session, error) {
	if m.repo == nil {
		return m.Active(), nil
	}
	return m.repo.List(ctx, limit)
}

// Recover closes ledger records left open by a previous process.
func (m *Manager) Recover(ctx context.Context) {
	if m.repo == nil {
		return
	}
	n, err := m.repo.CloseDangling(ctx, time.Now().UTC())
	if err != nil {
		m.log.Warn("Failed to close dangling sessions", "error", err)
		return
	}
	if n > 0 {
		m.log.Info("Closed sessions left open by previous run", "count", n)
	}
}

func copySession(s *model.Session) *model.Session {
	c := *s
	return &c
}

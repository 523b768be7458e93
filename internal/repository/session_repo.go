package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chatty-relay/backend/internal/model"
)

// SessionRepository persists the chat session ledger.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, identity, state, close_reason, remote_addr, opened_at, closed_at`

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO chat_sessions (id, identity, state, remote_addr, opened_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Identity,
		session.State,
		session.RemoteAddr,
		session.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List retrieves the most recently opened sessions, newest first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions ORDER BY opened_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// UpdateState updates the state of a session.
func (r *SessionRepository) UpdateState(ctx context.Context, id string, state model.SessionState) error {
	result, err := r.db.ExecContext(ctx, `UPDATE chat_sessions SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	return requireRow(result)
}

// MarkClosed records the terminal state of a session.
func (r *SessionRepository) MarkClosed(ctx context.Context, id string, reason model.CloseReason, closedAt time.Time) error {
	query := `
		UPDATE chat_sessions
		SET state = ?, close_reason = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, model.SessionStateClosed, reason, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return requireRow(result)
}

// CountByState returns the number of sessions in state.
func (r *SessionRepository) CountByState(ctx context.Context, state model.SessionState) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE state = ?`, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// CloseDangling marks every session left open by a previous process as closed.
func (r *SessionRepository) CloseDangling(ctx context.Context, closedAt time.Time) (int64, error) {
	query := `
		UPDATE chat_sessions
		SET state = ?, close_reason = ?, closed_at = ?
		WHERE state != ?
	`

	result, err := r.db.ExecContext(ctx, query,
		model.SessionStateClosed, model.CloseReasonServerShutdown, closedAt, model.SessionStateClosed)
	if err != nil {
		return 0, fmt.Errorf("failed to close dangling sessions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	var closeReason sql.NullString
	var remoteAddr sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.Identity,
		&session.State,
		&closeReason,
		&remoteAddr,
		&session.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if closeReason.Valid {
		session.CloseReason = model.CloseReason(closeReason.String)
	}
	if remoteAddr.Valid {
		session.RemoteAddr = remoteAddr.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		session.ClosedAt = &t
	}

	return session, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

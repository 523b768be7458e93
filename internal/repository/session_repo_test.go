package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chatty-relay/backend/internal/db"
	"github.com/chatty-relay/backend/internal/model"
)

func setupRepo(t *testing.T) *SessionRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewSessionRepository(testDB)
}

func newSession(identity string) *model.Session {
	return &model.Session{
		ID:         uuid.NewString(),
		Identity:   identity,
		State:      model.SessionStateActive,
		RemoteAddr: "127.0.0.1:5000",
		OpenedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	sess := newSession("alice")
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateState(ctx, sess.ID, model.SessionStateClosing); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	closedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.MarkClosed(ctx, sess.ID, model.CloseReasonWriteError, closedAt); err != nil {
		t.Fatalf("MarkClosed failed: %v", err)
	}

	got, err := repo.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.State != model.SessionStateClosed {
		t.Errorf("expected state closed, got %s", got.State)
	}
	if got.CloseReason != model.CloseReasonWriteError {
		t.Errorf("expected reason write_error, got %s", got.CloseReason)
	}
	if got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Errorf("expected closedAt %v, got %v", closedAt, got.ClosedAt)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.UpdateState(ctx, "missing", model.SessionStateClosing); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepository_ListAndCount(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, name := range []string{"a", "b", "c"} {
		s := newSession(name)
		s.OpenedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Identity != "c" || list[1].Identity != "b" {
		t.Errorf("expected newest first [c b], got %+v", list)
	}

	n, err := repo.CountByState(ctx, model.SessionStateActive)
	if err != nil || n != 3 {
		t.Errorf("expected 3 active, got %d (%v)", n, err)
	}

	closed, err := repo.CloseDangling(ctx, base)
	if err != nil || closed != 3 {
		t.Errorf("expected 3 dangling sessions closed, got %d (%v)", closed, err)
	}

	n, _ = repo.CountByState(ctx, model.SessionStateActive)
	if n != 0 {
		t.Errorf("expected 0 active after CloseDangling, got %d", n)
	}
}

// Any session written to the ledger can be read back unchanged.
func TestSessionLedgerRoundTripProperty(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 64
	})

	properties.Property("session record persists and can be retrieved", prop.ForAll(
		func(identity, addr string) bool {
			sess := newSession(identity)
			sess.RemoteAddr = addr

			if err := repo.Create(ctx, sess); err != nil {
				t.Logf("failed to create session: %v", err)
				return false
			}

			got, err := repo.GetByID(ctx, sess.ID)
			if err != nil {
				t.Logf("failed to retrieve session: %v", err)
				return false
			}

			return got.ID == sess.ID &&
				got.Identity == sess.Identity &&
				got.State == sess.State &&
				got.RemoteAddr == sess.RemoteAddr &&
				got.ClosedAt == nil
		},
		nonEmptyString,
		nonEmptyString,
	))

	properties.TestingRun(t)
}

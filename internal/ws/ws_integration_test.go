package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatty-relay/backend/internal/db"
	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/repository"
	"github.com/chatty-relay/backend/internal/session"
)

// newLedgerFixture is newFixture backed by an in-memory session ledger.
func newLedgerFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	fx := newFixture(t, ServiceConfig{}, SupervisorConfig{})
	fx.sessions = session.NewManager(repository.NewSessionRepository(database), discardLogger())
	fx.supervisor = NewSupervisor(fx.service, fx.binder, fx.sessions, SupervisorConfig{}, discardLogger())
	return fx
}

// newTestServer exposes the supervisor the same way the HTTP router does.
func newTestServer(t *testing.T, fx *fixture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.supervisor.HandleConnection(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) model.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg model.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocketEndToEnd(t *testing.T) {
	fx := newLedgerFixture(t)
	srv := newTestServer(t, fx)

	fx.service.Post("system", "welcome")

	aliceToken, _ := fx.binder.Issue("alice", "pw")
	bobToken, _ := fx.binder.Issue("bob", "pw")

	alice, _, err := dial(t, srv, aliceToken, "")
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	bob, _, err := dial(t, srv, bobToken, "?replay=true")
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	if msg := readMessage(t, bob); msg.Content != "welcome" {
		t.Errorf("expected replayed welcome, got %+v", msg)
	}
	waitFor(t, func() bool { return fx.service.Hub().Len() == 2 })

	if err := alice.WriteJSON(model.ChatSubmission{Content: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		if msg.Content != "hello" || msg.Author != "alice" {
			t.Errorf("unexpected message %+v", msg)
		}
	}

	// A normal close from the client ends the session cleanly
	alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	var closed *model.Session
	waitFor(t, func() bool {
		records, err := fx.sessions.List(context.Background(), 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, rec := range records {
			if rec.State == model.SessionStateClosed {
				closed = rec
				return true
			}
		}
		return false
	})

	if closed.Identity != "alice" || closed.CloseReason != model.CloseReasonClientClosed {
		t.Errorf("unexpected closed record %+v", closed)
	}
	if closed.ClosedAt == nil {
		t.Error("closed record should carry a close time")
	}
	if fx.service.Hub().Len() != 1 {
		t.Errorf("expected bob to remain subscribed, got %d", fx.service.Hub().Len())
	}
}

func TestWebSocketBindsQueryToken(t *testing.T) {
	fx := newFixture(t, ServiceConfig{}, SupervisorConfig{})
	srv := newTestServer(t, fx)

	token, err := fx.binder.Issue("carol", "secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	conn, _, err := dial(t, srv, "", "?token="+token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return fx.sessions.ActiveCount() == 1 })

	active := fx.sessions.Active()
	if active[0].Identity != "carol" || active[0].State != model.SessionStateActive {
		t.Errorf("unexpected session %+v", active[0])
	}

	if err := conn.WriteJSON(map[string]string{"content": "hi", "author": "mallory"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Author != "carol" {
		t.Errorf("expected author carol, got %q", msg.Author)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	fx := newFixture(t, ServiceConfig{}, SupervisorConfig{})
	srv := newTestServer(t, fx)

	_, resp, err := dial(t, srv, "", "")
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
	if fx.sessions.ActiveCount() != 0 {
		t.Error("no session should be opened")
	}
}

func TestWebSocketShutdownSendsNormalClose(t *testing.T) {
	fx := newFixture(t, ServiceConfig{}, SupervisorConfig{})
	srv := newTestServer(t, fx)

	token, _ := fx.binder.Issue("alice", "pw")
	conn, _, err := dial(t, srv, token, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return fx.service.Hub().Len() == 1 })

	fx.service.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"allow all by default", nil, "https://evil.example", true},
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"no origin header", []string{"https://chat.example"}, "", true},
		{"listed origin", []string{"https://chat.example"}, "https://chat.example", true},
		{"case insensitive", []string{"https://Chat.Example"}, "https://chat.example", true},
		{"unlisted origin", []string{"https://chat.example"}, "https://evil.example", false},
		{"garbage origin", []string{"https://chat.example"}, "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := NewOriginChecker(tt.allowed).Check(r); got != tt.want {
				t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

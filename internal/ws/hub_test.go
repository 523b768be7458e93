package ws

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chatty-relay/backend/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receiveWithTimeout(t *testing.T, sub *Subscription, timeout time.Duration) (model.Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		return msg, ok
	case <-time.After(timeout):
		return model.Message{}, false
	}
}

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub(8, discardLogger())
	defer hub.Close()

	sub1, err := hub.Subscribe("s1")
	if err != nil {
		t.Fatalf("subscribe s1: %v", err)
	}
	sub2, err := hub.Subscribe("s2")
	if err != nil {
		t.Fatalf("subscribe s2: %v", err)
	}

	if hub.Len() != 2 {
		t.Errorf("expected 2 subscribers, got %d", hub.Len())
	}

	delivered, dropped := hub.Publish(model.Message{ID: 1, Content: "hello"})
	if delivered != 2 || len(dropped) != 0 {
		t.Errorf("expected 2 delivered 0 dropped, got %d/%d", delivered, len(dropped))
	}

	for _, sub := range []*Subscription{sub1, sub2} {
		msg, ok := receiveWithTimeout(t, sub, 100*time.Millisecond)
		if !ok || msg.Content != "hello" {
			t.Errorf("%s: expected hello, got %+v (ok=%v)", sub.ID(), msg, ok)
		}
	}
}

func TestHubDuplicateSubscribe(t *testing.T) {
	hub := NewHub(8, discardLogger())
	defer hub.Close()

	if _, err := hub.Subscribe("dup"); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if _, err := hub.Subscribe("dup"); !errors.Is(err, model.ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}

	// After unsubscribing the id can be used again
	hub.Unsubscribe("dup")
	if _, err := hub.Subscribe("dup"); err != nil {
		t.Errorf("resubscribe after unsubscribe: %v", err)
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(8, discardLogger())
	defer hub.Close()

	sub, _ := hub.Subscribe("s1")
	hub.Unsubscribe("s1")
	hub.Unsubscribe("s1")
	hub.Unsubscribe("never-registered")

	if hub.Has("s1") {
		t.Error("s1 should be gone")
	}
	if _, ok := <-sub.C(); ok {
		t.Error("delivery channel should be closed after unsubscribe")
	}
}

func TestHubDropsSaturatedSubscriber(t *testing.T) {
	hub := NewHub(2, discardLogger())
	defer hub.Close()

	stuck, _ := hub.Subscribe("stuck")
	healthy, _ := hub.Subscribe("healthy")

	start := time.Now()
	for i := 1; i <= 5; i++ {
		hub.Publish(model.Message{ID: uint64(i)})

		// The healthy subscriber drains after every publish
		msg, ok := receiveWithTimeout(t, healthy, time.Second)
		if !ok || msg.ID != uint64(i) {
			t.Fatalf("healthy subscriber: want message %d, got %+v (ok=%v)", i, msg, ok)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("publish stalled for %v", elapsed)
	}

	if hub.Has("stuck") {
		t.Error("saturated subscriber should have been dropped")
	}
	if !hub.Has("healthy") {
		t.Error("healthy subscriber should remain")
	}

	// The stuck subscriber keeps what was buffered, then sees the close
	var ids []uint64
	for msg := range stuck.C() {
		ids = append(ids, msg.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected buffered messages [1 2] for stuck subscriber, got %v", ids)
	}
}

func TestHubCloseRefusesNewSubscribers(t *testing.T) {
	hub := NewHub(8, discardLogger())
	sub, _ := hub.Subscribe("s1")

	hub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel after hub close")
	}
	if _, err := hub.Subscribe("s2"); !errors.Is(err, model.ErrServiceClosed) {
		t.Errorf("expected ErrServiceClosed, got %v", err)
	}
	if hub.Len() != 0 {
		t.Errorf("expected empty hub, got %d", hub.Len())
	}
}

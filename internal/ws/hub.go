package ws

import (
	"log/slog"
	"sync"

	"github.com/chatty-relay/backend/internal/model"
)

// DefaultDeliveryBuffer is the per-subscriber queue length.
const DefaultDeliveryBuffer = 256

// Subscription is a session's delivery handle. Publish writes into it and the
// session's outbound pump drains it. The channel is closed when the
// subscription is removed from the hub, either by Unsubscribe or because the
// subscriber fell too far behind.
type Subscription struct {
	id   string
	send chan model.Message
}

// ID returns the session id this subscription belongs to.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan model.Message {
	return s.send
}

// Hub is the subscriber registry. All mutations and the publish loop run
// under one mutex, which keeps per-subscriber delivery in publish order.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]*Subscription
	bufferSize int
	closed     bool
	log        *slog.Logger
}

// NewHub creates a Hub whose subscriptions buffer up to bufferSize messages.
func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultDeliveryBuffer
	}
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers a delivery handle for sessionID. It fails with
// model.ErrDuplicateSession if sessionID is already registered.
func (h *Hub) Subscribe(sessionID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked(sessionID)
}

func (h *Hub) subscribeLocked(sessionID string) (*Subscription, error) {
	if h.closed {
		return nil, model.ErrServiceClosed
	}
	if _, exists := h.subs[sessionID]; exists {
		return nil, model.ErrDuplicateSession
	}

	sub := &Subscription{
		id:   sessionID,
		send: make(chan model.Message, h.bufferSize),
	}
	h.subs[sessionID] = sub
	return sub, nil
}

// Unsubscribe removes sessionID. Removing an absent id is a no-op.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[sessionID]; ok {
		delete(h.subs, sessionID)
		close(sub.send)
	}
}

// Publish delivers msg to every registered subscription without blocking.
// A subscription whose buffer is full is removed and its channel closed; the
// ids of dropped subscribers are returned.
func (h *Hub) Publish(msg model.Message) (delivered int, dropped []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.send <- msg:
			delivered++
		default:
			// Buffer full, drop the subscriber
			delete(h.subs, id)
			close(sub.send)
			dropped = append(dropped, id)
		}
	}

	for _, id := range dropped {
		h.log.Warn("Dropped slow subscriber", "session_id", id, "message_id", msg.ID)
	}
	return delivered, dropped
}

// Has reports whether sessionID is registered.
func (h *Hub) Has(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sessionID]
	return ok
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.send)
	}
}

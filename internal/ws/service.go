package ws

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chatty-relay/backend/internal/buffer"
	"github.com/chatty-relay/backend/internal/model"
)

// DefaultMaxContentLength is the longest accepted chat line, in runes.
const DefaultMaxContentLength = 2000

// ServiceConfig configures a Service.
type ServiceConfig struct {
	HistoryCapacity  int
	DeliveryBuffer   int
	MaxContentLength int
}

// Service owns the history buffer and the hub. Post is the only way a chat
// message enters the system, whether it arrives over a persistent connection
// or a one-shot HTTP request.
type Service struct {
	hub              *Hub
	history          *buffer.RingBuffer
	maxContentLength int
	log              *slog.Logger
	now              func() time.Time

	// mu serializes stamping, history append and publish so that history
	// order and delivery order are the same.
	mu     sync.Mutex
	lastID uint64
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// NewService creates a new chat service.
func NewService(cfg ServiceConfig, log *slog.Logger) *Service {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = buffer.DefaultCapacity
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		hub:              NewHub(cfg.DeliveryBuffer, log),
		history:          buffer.NewRingBuffer(cfg.HistoryCapacity),
		maxContentLength: cfg.MaxContentLength,
		log:              log,
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Hub returns the subscriber registry.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Post validates content, stamps it as a new message from author, appends it
// to history and publishes it to every subscriber.
func (s *Service) Post(author, content string) (model.Message, error) {
	content, err := s.validate(content)
	if err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.Message{}, model.ErrServiceClosed
	}

	now := s.now()
	msg := model.Message{
		ID:        s.nextID(now),
		Timestamp: now.Unix(),
		Author:    author,
		Content:   content,
	}

	s.history.Append(msg)
	delivered, dropped := s.hub.Publish(msg)

	s.log.Debug("Message posted",
		"message_id", msg.ID,
		"author", author,
		"delivered", delivered,
		"dropped", len(dropped),
	)
	return msg, nil
}

// nextID derives ids from wall-clock milliseconds but never repeats or goes
// backwards within a process.
func (s *Service) nextID(now time.Time) uint64 {
	id := uint64(now.UnixMilli())
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *Service) validate(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", model.ErrMalformedMessage
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", model.ErrMalformedMessage
	}
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return "", model.ErrMessageTooLong
	}
	return content, nil
}

// History returns the buffered messages, oldest first.
func (s *Service) History() []model.Message {
	return s.history.Snapshot()
}

// Attach subscribes sessionID. When replay is set it also returns the history
// snapshot taken atomically with the subscription, so the session sees every
// message exactly once across backlog and live delivery.
func (s *Service) Attach(sessionID string, replay bool) (*Subscription, []model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, model.ErrServiceClosed
	}

	sub, err := s.hub.Subscribe(sessionID)
	if err != nil {
		return nil, nil, err
	}

	var backlog []model.Message
	if replay {
		backlog = s.history.Snapshot()
	}
	return sub, backlog, nil
}

// Detach unsubscribes sessionID. It is safe to call more than once.
func (s *Service) Detach(sessionID string) {
	s.hub.Unsubscribe(sessionID)
}

// track registers a running session so Close can wait for it. The returned
// context is cancelled when the service shuts down.
func (s *Service) track() (context.Context, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, false
	}
	s.sessions.Add(1)
	return s.ctx, s.sessions.Done, true
}

// Close cancels every live session, waits for their supervisors to finish
// cleanup and then closes the hub.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.sessions.Wait()
	s.hub.Close()
}

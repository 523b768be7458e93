package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chatty-relay/backend/internal/model"
)

var (
	errPeerClosed  = errors.New("peer closed connection")
	errReadFailed  = errors.New("read failed")
	errWriteFailed = errors.New("write failed")
)

// Session is the pump pair of one authenticated connection.
type Session struct {
	id         string
	identity   string
	transport  Transport
	sub        *Subscription
	service    *Service
	limiter    *rate.Limiter
	pingPeriod time.Duration
	log        *slog.Logger
}

// Run starts the inbound and outbound pumps and blocks until both have
// stopped. Whichever pump stops first cancels the other; its cause is
// returned as the close reason. backlog is written before any live message.
func (s *Session) Run(ctx context.Context, backlog []model.Message) model.CloseReason {
	g, ctx := errgroup.WithContext(ctx)

	writeDone := make(chan struct{})

	g.Go(func() error {
		return s.readPump(ctx)
	})
	g.Go(func() error {
		defer close(writeDone)
		return s.writePump(ctx, backlog)
	})
	g.Go(func() error {
		// Closing the transport is what unblocks a pending read. Wait for
		// the first result to be recorded and for the close frame to go out.
		<-ctx.Done()
		<-writeDone
		s.transport.Close()
		return nil
	})

	// Both pumps always return a non-nil error, so Wait reports the first.
	return closeReason(g.Wait())
}

// readPump turns inbound frames into posted messages. A frame that is not a
// valid submission, or that exceeds the rate limit, is discarded.
func (s *Session) readPump(ctx context.Context) error {
	for {
		data, err := s.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errPeerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", errReadFailed, err)
		}

		if !s.limiter.Allow() {
			s.log.Warn("Rate limit exceeded, chat line discarded", "bytes", len(data))
			continue
		}

		var submission model.ChatSubmission
		if err := json.Unmarshal(data, &submission); err != nil {
			s.log.Debug("Discarding malformed frame", "error", err)
			continue
		}

		if _, err := s.service.Post(s.identity, submission.Content); err != nil {
			if errors.Is(err, model.ErrServiceClosed) {
				return err
			}
			s.log.Debug("Discarding rejected message", "error", err)
		}
	}
}

// writePump writes delivered messages to the connection and keeps it alive
// with pings.
func (s *Session) writePump(ctx context.Context, backlog []model.Message) error {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for _, msg := range backlog {
		if err := s.write(msg); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.transport.WriteClose()
			return ctx.Err()

		case msg, ok := <-s.sub.C():
			if !ok {
				// The hub removed us
				s.transport.WriteClose()
				return model.ErrSubscriberDropped
			}
			if err := s.write(msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.transport.Ping(); err != nil {
				return fmt.Errorf("%w: %w", errWriteFailed, err)
			}
		}
	}
}

func (s *Session) write(msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	if err := s.transport.WriteFrame(data); err != nil {
		return fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	return nil
}

func closeReason(err error) model.CloseReason {
	switch {
	case errors.Is(err, errPeerClosed):
		return model.CloseReasonClientClosed
	case errors.Is(err, model.ErrSubscriberDropped):
		return model.CloseReasonDroppedSlow
	case errors.Is(err, errWriteFailed):
		return model.CloseReasonWriteError
	case errors.Is(err, errReadFailed):
		return model.CloseReasonReadError
	default:
		return model.CloseReasonServerShutdown
	}
}

package ws

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one persistent connection as seen by a Session. ReadFrame is
// only called from the inbound pump; WriteFrame, Ping and WriteClose only
// from the outbound pump. Close may be called from anywhere and must unblock
// a pending ReadFrame.
type Transport interface {
	// ReadFrame returns the next application message. It returns io.EOF when
	// the peer ended the stream normally.
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Ping() error
	// WriteClose tells the peer the stream is ending normally.
	WriteClose() error
	Close() error
	RemoteAddr() string
}

// wsTransport adapts a gorilla websocket connection.
type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration
}

// NewWebSocketTransport wraps conn. Reads fail once no frame or pong arrives
// within pongWait; writes fail after writeWait.
func NewWebSocketTransport(conn *websocket.Conn, maxMessageSize int64, writeWait, pongWait time.Duration) Transport {
	t := &wsTransport{
		conn:      conn,
		writeWait: writeWait,
		pongWait:  pongWait,
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return t
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	return data, nil
}

func (t *wsTransport) WriteFrame(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *wsTransport) WriteClose() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeWait))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// OriginChecker decides whether a browser origin may open the persistent
// channel. An empty list or "*" allows every origin. Requests without an
// Origin header come from non-browser clients and are always allowed.
type OriginChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOriginChecker lower-cases the scheme and host of every configured origin.
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{})}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			oc.allowed[normalized] = struct{}{}
		}
	}

	if len(oc.allowed) == 0 {
		oc.allowAll = true
	}
	return oc
}

// Check implements websocket.Upgrader.CheckOrigin.
func (oc *OriginChecker) Check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" || oc.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}
	_, exists := oc.allowed[normalized]
	return exists
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

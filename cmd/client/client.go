package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/chatty-relay/backend/api/handlers"
	"github.com/chatty-relay/backend/internal/model"
)

// client talks to one relay server.
type client struct {
	httpBase string
	wsBase   string
	http     *http.Client
}

// newClient accepts host:port or a full http(s) URL.
func newClient(addr string, httpClient *http.Client) *client {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &client{
		httpBase: addr,
		wsBase:   "ws" + strings.TrimPrefix(addr, "http"),
		http:     httpClient,
	}
}

func (c *client) authenticate(username, password string) (string, error) {
	body, err := json.Marshal(model.AuthRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}

	resp, err := c.http.Post(c.httpBase+"/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var api handlers.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if api.Token == "" {
		return "", errors.New("server returned no token")
	}
	return api.Token, nil
}

// dial opens the chat channel. The server replays its history ahead of live
// messages, in the same step that subscribes the connection, so nothing
// posted in between is lost.
func (c *client) dial(token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.Dial(c.wsBase+"/ws?replay=true", header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

func decodeError(resp *http.Response) error {
	var e handlers.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error.Message == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
}

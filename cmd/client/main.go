// Command client is an interactive terminal client for the chat relay.
// Usage: go run ./cmd/client
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatty-relay/backend/internal/model"
)

const quitCommand = "/quit"

func main() {
	fmt.Println("Welcome to chatty!")

	in := bufio.NewScanner(os.Stdin)
	addr := prompt(in, "Provide server address and port: ")
	username := prompt(in, "Enter username: ")
	password := prompt(in, "Enter password: ")

	c := newClient(addr, &http.Client{Timeout: 10 * time.Second})

	token, err := c.authenticate(username, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Authentication successful!")

	conn, err := c.dial(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("WebSocket connected!")

	done := make(chan struct{})
	go func() {
		defer close(done)
		receive(conn, os.Stdout)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	fmt.Printf("\nStart chatting (type '%s' to exit):\n", quitCommand)

loop:
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			break loop
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.WriteJSON(model.ChatSubmission{Content: line}); err != nil {
				fmt.Fprintf(os.Stderr, "Error sending message: %v\n", err)
				break loop
			}
		}
	}

	fmt.Println("Goodbye!")
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	// Wait for the server to acknowledge the close
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		os.Exit(1)
	}
	return strings.TrimSpace(in.Text())
}

// receive prints every chat message until the connection ends.
func receive(conn *websocket.Conn, out io.Writer) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Fprintf(out, "Error receiving message: %v\n", err)
			} else {
				fmt.Fprintln(out, "Connection closed by server")
			}
			return
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		fmt.Fprintln(out, formatMessage(msg))
	}
}

// formatMessage renders a message as "[author] HH:MM:SS: content".
func formatMessage(msg model.Message) string {
	return fmt.Sprintf("[%s] %s: %s", msg.Author, msg.Time().Format("15:04:05"), msg.Content)
}

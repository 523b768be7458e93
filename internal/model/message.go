package model

import "time"

// Message is a chat line as stored in history and delivered to subscribers.
// It is built once by the chat service and never mutated afterwards.
type Message struct {
	ID        uint64 `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Author    string `json:"author"`
	Content   string `json:"content"`
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// ChatSubmission is what a client sends: content only. Every other
// Message field is assigned by the server.
type ChatSubmission struct {
	Content string `json:"content"`
}

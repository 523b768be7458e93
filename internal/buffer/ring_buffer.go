// Package buffer provides the bounded chat history used for replay and
// "what did I miss" queries.
package buffer

import (
	"sync"

	"github.com/chatty-relay/backend/internal/model"
)

// DefaultCapacity is the number of messages kept when no capacity is configured.
const DefaultCapacity = 100

// RingBuffer is a thread-safe circular buffer that keeps the most recent
// messages up to a fixed capacity. When the buffer is full, the oldest
// message is evicted before the new one is stored.
type RingBuffer struct {
	items    []model.Message
	start    int // index of the oldest message
	count    int
	capacity int
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		items:    make([]model.Message, capacity),
		capacity: capacity,
	}
}

// Append stores msg as the newest entry, evicting the oldest one if the
// buffer is at capacity. It cannot fail.
func (rb *RingBuffer) Append(msg model.Message) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count < rb.capacity {
		rb.items[(rb.start+rb.count)%rb.capacity] = msg
		rb.count++
		return
	}

	// Full: overwrite the oldest slot and advance start.
	rb.items[rb.start] = msg
	rb.start = (rb.start + 1) % rb.capacity
}

// Snapshot returns a copy of the buffered messages, oldest first.
// The returned slice is safe to use without holding the lock.
func (rb *RingBuffer) Snapshot() []model.Message {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]model.Message, rb.count)
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(rb.start+i)%rb.capacity]
	}
	return result
}

// Len returns the current number of messages in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.count
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}

package entities

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a conversation message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// HistoryLimit is the maximum number of messages retained in memory.
// Persistence of older messages is the UI layer's responsibility.
const HistoryLimit = 50

// Message is an immutable entry in the conversation history. It is created
// at turn finalization or on explicit user text submission and never
// mutated afterwards.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// History holds the most recent conversation messages, oldest first,
// capped to HistoryLimit entries. It is written by the session event loop
// and read by observer goroutines, so access is synchronized.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{messages: make([]Message, 0, HistoryLimit)}
}

// Append adds a message, evicting the oldest entry once the cap is reached.
func (h *History) Append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	if len(h.messages) > HistoryLimit {
		h.messages = h.messages[len(h.messages)-HistoryLimit:]
	}
}

// Messages returns a copy of the retained messages, oldest first.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

package monitor

import (
	"time"

	"github.com/wicaksana/swara/domain/entities"
	"github.com/wicaksana/swara/internal/engine"
)

// MessageType defines the type of WebSocket message pushed to monitors
type MessageType string

// Supported message types
const (
	MessageTypeState      MessageType = "state"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeMessage    MessageType = "message"
	MessageTypeSpeaking   MessageType = "speaking"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// StateMessage announces a session state transition
type StateMessage struct {
	BaseMessage
	State entities.SessionState `json:"state"`
}

// TranscriptMessage carries a partial transcript fragment for the
// current turn
type TranscriptMessage struct {
	BaseMessage
	Sender entities.Sender `json:"sender"`
	Text   string          `json:"text"`
}

// HistoryMessage carries a finalized conversation entry
type HistoryMessage struct {
	BaseMessage
	Message entities.Message `json:"message"`
}

// SpeakingMessage announces the model starting or stopping audible
// playback
type SpeakingMessage struct {
	BaseMessage
	Speaking bool `json:"speaking"`
}

func newBase(messageType MessageType) BaseMessage {
	return BaseMessage{
		Type:      messageType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// FromNotification converts an engine notification into its wire
// message. The second return is false for notification types that have
// no monitor representation.
func FromNotification(n engine.Notification) (interface{}, bool) {
	switch n.Type {
	case engine.NotificationState:
		return &StateMessage{BaseMessage: newBase(MessageTypeState), State: n.State}, true
	case engine.NotificationTranscript:
		return &TranscriptMessage{BaseMessage: newBase(MessageTypeTranscript), Sender: n.Sender, Text: n.Text}, true
	case engine.NotificationMessage:
		if n.Message == nil {
			return nil, false
		}
		return &HistoryMessage{BaseMessage: newBase(MessageTypeMessage), Message: *n.Message}, true
	case engine.NotificationSpeaking:
		return &SpeakingMessage{BaseMessage: newBase(MessageTypeSpeaking), Speaking: n.Speaking}, true
	default:
		return nil, false
	}
}

package engine

import (
	"github.com/wicaksana/swara/domain/entities"
	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/audio"
)

// NotificationType identifies an observable engine event.
type NotificationType string

const (
	// NotificationState signals a session state transition.
	NotificationState NotificationType = "state"
	// NotificationTranscript carries a partial transcript fragment for
	// the current turn.
	NotificationTranscript NotificationType = "transcript"
	// NotificationMessage carries a finalized history message.
	NotificationMessage NotificationType = "message"
	// NotificationSpeaking signals the model starting or stopping
	// audible playback.
	NotificationSpeaking NotificationType = "speaking"
)

// Notification is an observable event emitted by the controller for UI
// layers. Notifications are informational; dropping them never affects
// engine semantics.
type Notification struct {
	Type     NotificationType
	State    entities.SessionState
	Sender   entities.Sender
	Text     string
	Message  *entities.Message
	Speaking bool
}

// Internal controller events. Everything the controller reacts to is one
// of these, consumed by a single loop.
type event interface{}

type startEvent struct{}

type stopEvent struct{}

type retryEvent struct{}

type shutdownEvent struct{}

type sendTextEvent struct{ text string }

type frameEvent struct{ samples []float32 }

type channelOpenEvent struct{}

type channelErrorEvent struct{ err error }

type channelCloseEvent struct{}

type inboundEvent struct{ msg repositories.ServerEvent }

type decodedEvent struct {
	buf        *audio.Buffer
	generation uint64
}

type sourceEndedEvent struct{ source repositories.PlaybackHandle }

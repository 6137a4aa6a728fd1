package repositories

import (
	"context"

	"github.com/wicaksana/swara/domain/entities"
)

// ServerEvent is one inbound delivery from the conversational endpoint.
// A single delivery may carry transcription fragments, a turn-complete
// flag, an interruption flag, and audio chunks at the same time; consumers
// must process them in that order.
type ServerEvent struct {
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	Interrupted      bool
	AudioChunks      []entities.AudioBlob
}

// ChannelConfig configures a conversation channel at connect time.
type ChannelConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
}

// ChannelCallbacks receive lifecycle and message events from an open
// channel. Callbacks may be invoked from the channel's own goroutine and
// must not block.
type ChannelCallbacks struct {
	OnOpen    func()
	OnMessage func(ServerEvent)
	OnError   func(error)
	OnClose   func()
}

// ConversationChannel is an open bidirectional stream to the remote
// conversational speech endpoint.
type ConversationChannel interface {
	// SendAudio transmits one captured frame. Fire-and-forget; there is
	// no acknowledgement.
	SendAudio(ctx context.Context, blob entities.AudioBlob) error
	// SendText transmits a typed user message as an alternative input
	// modality.
	SendText(ctx context.Context, text string) error
	// Close terminates the channel. Closing an already-closed channel is
	// a no-op.
	Close() error
}

// ChannelDialer opens conversation channels.
type ChannelDialer interface {
	Connect(ctx context.Context, config ChannelConfig, callbacks ChannelCallbacks) (ConversationChannel, error)
}

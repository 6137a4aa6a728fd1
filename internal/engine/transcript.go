package engine

import (
	"strings"

	"github.com/wicaksana/swara/domain/entities"
)

// TranscriptAggregator accumulates incremental input/output transcription
// fragments for the current conversational turn and finalizes them into
// immutable history messages when the turn completes. It is driven only
// from the session event loop.
type TranscriptAggregator struct {
	input   strings.Builder
	output  strings.Builder
	history *entities.History
}

// NewTranscriptAggregator creates an aggregator appending finalized
// messages to history.
func NewTranscriptAggregator(history *entities.History) *TranscriptAggregator {
	return &TranscriptAggregator{history: history}
}

// AppendInput concatenates a user transcription fragment onto the current
// turn. Fragments are kept in arrival order.
func (a *TranscriptAggregator) AppendInput(fragment string) {
	a.input.WriteString(fragment)
}

// AppendOutput concatenates a model transcription fragment onto the
// current turn.
func (a *TranscriptAggregator) AppendOutput(fragment string) {
	a.output.WriteString(fragment)
}

// InputText returns the partial user transcript of the current turn.
func (a *TranscriptAggregator) InputText() string {
	return a.input.String()
}

// OutputText returns the partial model transcript of the current turn.
func (a *TranscriptAggregator) OutputText() string {
	return a.output.String()
}

// CompleteTurn finalizes the current turn: each non-empty accumulator
// becomes a history message (user first, then model) and both accumulators
// are cleared. A turn with no fragments produces no messages.
func (a *TranscriptAggregator) CompleteTurn() []entities.Message {
	input := a.input.String()
	output := a.output.String()
	if input == "" && output == "" {
		return nil
	}

	var messages []entities.Message
	if input != "" {
		messages = append(messages, entities.NewMessage(entities.SenderUser, input))
	}
	if output != "" {
		messages = append(messages, entities.NewMessage(entities.SenderModel, output))
	}
	for _, msg := range messages {
		a.history.Append(msg)
	}

	a.input.Reset()
	a.output.Reset()
	return messages
}

package monitor

import (
	"github.com/wicaksana/swara/domain/entities"
)

// StatusResponse reports the live session status
type StatusResponse struct {
	State    entities.SessionState `json:"state"`
	Speaking bool                  `json:"speaking"`
	TalkMode string                `json:"talk_mode"`
}

// HistoryResponse wraps the conversation history
type HistoryResponse struct {
	Messages []entities.Message `json:"messages"`
}

// SendMessageRequest submits a typed user message
type SendMessageRequest struct {
	Text string `json:"text"`
}

// TalkRequest adjusts capture gating
type TalkRequest struct {
	Mode    string `json:"mode,omitempty"`
	Pressed *bool  `json:"pressed,omitempty"`
}

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

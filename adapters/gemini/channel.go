package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/wicaksana/swara/domain/entities"
	"github.com/wicaksana/swara/domain/repositories"
)

// Dialer implements the ChannelDialer interface using the Gemini Live API.
type Dialer struct {
	client *genai.Client
	logger *zap.Logger
}

// NewDialer creates a new Gemini Live dialer
func NewDialer(logger *zap.Logger) (*Dialer, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Dialer{
		client: client,
		logger: logger,
	}, nil
}

// Connect opens a live session and starts the receive loop. OnOpen fires
// once the endpoint acknowledges setup, not when Connect returns.
func (d *Dialer) Connect(ctx context.Context, config repositories.ChannelConfig, callbacks repositories.ChannelCallbacks) (repositories.ConversationChannel, error) {
	liveConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: config.Voice,
				},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if config.SystemInstruction != "" {
		liveConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}

	session, err := d.client.Live.Connect(ctx, config.Model, liveConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	d.logger.Info("Live session opened", zap.String("model", config.Model))

	channel := &Channel{
		session:   session,
		callbacks: callbacks,
		logger:    d.logger,
	}
	go channel.receive()

	return channel, nil
}

// Channel implements the ConversationChannel interface over one open
// Gemini Live session.
type Channel struct {
	session   *genai.Session
	callbacks repositories.ChannelCallbacks
	logger    *zap.Logger
	closed    atomic.Bool
}

// SendAudio transmits one captured frame as realtime media input.
func (c *Channel) SendAudio(_ context.Context, blob entities.AudioBlob) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}

	raw, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		return fmt.Errorf("invalid audio blob: %w", err)
	}

	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: blob.MIMEType,
			Data:     raw,
		},
	})
}

// SendText transmits a typed user message as a completed client turn.
func (c *Channel) SendText(_ context.Context, text string) error {
	if c.closed.Load() {
		return fmt.Errorf("channel is closed")
	}

	return c.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
}

// Close terminates the session. Idempotent.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.session.Close()
}

// receive pumps server messages until the session ends, translating each
// into the transport-neutral event format.
func (c *Channel) receive() {
	for {
		message, err := c.session.Receive()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if err == io.EOF {
				c.logger.Info("Live session ended by remote")
				c.callbacks.OnClose()
				return
			}
			c.logger.Error("Failed to receive live message", zap.Error(err))
			c.callbacks.OnError(err)
			return
		}

		if message.SetupComplete != nil {
			c.callbacks.OnOpen()
		}
		if message.ServerContent != nil {
			c.callbacks.OnMessage(translateServerContent(message.ServerContent))
		}
	}
}

// translateServerContent flattens one live server delivery. A single
// delivery may carry transcription fragments, control flags and audio
// chunks at the same time.
func translateServerContent(content *genai.LiveServerContent) repositories.ServerEvent {
	event := repositories.ServerEvent{
		TurnComplete: content.TurnComplete,
		Interrupted:  content.Interrupted,
	}
	if content.InputTranscription != nil {
		event.InputTranscript = content.InputTranscription.Text
	}
	if content.OutputTranscription != nil {
		event.OutputTranscript = content.OutputTranscription.Text
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			event.AudioChunks = append(event.AudioChunks, entities.AudioBlob{
				MIMEType: part.InlineData.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
			})
		}
	}
	return event
}

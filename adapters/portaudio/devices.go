package portaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/wicaksana/swara/domain/repositories"
)

// Provider implements the AudioDeviceProvider interface using PortAudio.
// It owns the library lifecycle: one Initialize at construction, one
// Terminate on Close, with capture and playback streams opened per
// session in between.
type Provider struct {
	logger *zap.Logger
}

// NewProvider initializes PortAudio and creates a device provider
func NewProvider(logger *zap.Logger) (*Provider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Provider{logger: logger}, nil
}

// OpenCapture opens the default input device and starts delivering frames.
func (p *Provider) OpenCapture(onFrame func([]float32)) (repositories.AudioCapture, error) {
	return newMicrophone(onFrame, p.logger)
}

// OpenPlayback opens the default output device at the given gain.
func (p *Provider) OpenPlayback(volume float64) (repositories.PlaybackSink, error) {
	return newSpeaker(volume, p.logger)
}

// Close terminates PortAudio. Call after every stream is closed.
func (p *Provider) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

package portaudio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/wicaksana/swara/internal/audio"
)

// captureFrameSize is 20ms of input audio, the granularity frames are
// handed to the engine at.
const captureFrameSize = audio.InputSampleRate / 50

// Microphone is an open default-input capture stream delivering mono
// float32 frames at the engine's input rate.
type Microphone struct {
	stream    *portaudio.Stream
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

func newMicrophone(onFrame func([]float32), logger *zap.Logger) (*Microphone, error) {
	m := &Microphone{logger: logger}

	stream, err := portaudio.OpenDefaultStream(1, 0, audio.InputSampleRate, captureFrameSize, func(in []float32) {
		// The callback buffer is reused by PortAudio; hand out a copy.
		frame := make([]float32, len(in))
		copy(frame, in)
		onFrame(frame)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}
	m.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start capture stream: %w", err)
	}

	logger.Info("Microphone opened",
		zap.Int("sampleRate", audio.InputSampleRate),
		zap.Int("framesPerBuffer", captureFrameSize))
	return m, nil
}

// Close stops the stream and releases the device. Idempotent.
func (m *Microphone) Close() error {
	m.closeOnce.Do(func() {
		if err := m.stream.Stop(); err != nil {
			m.logger.Warn("Failed to stop capture stream", zap.Error(err))
		}
		m.closeErr = m.stream.Close()
	})
	return m.closeErr
}

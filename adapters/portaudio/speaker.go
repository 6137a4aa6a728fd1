package portaudio

import (
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/audio"
)

// playbackFrameSize trades callback frequency against added output
// latency; 512 samples is just over 21ms at the output rate.
const playbackFrameSize = 512

// Speaker implements the PlaybackSink interface on the default output
// device. The device clock is a sample counter advanced by the fill
// callback, so scheduled segments line up gaplessly regardless of
// wall-clock jitter. Overlapping segments are mixed.
type Speaker struct {
	stream *portaudio.Stream
	logger *zap.Logger
	volume float32

	mu      sync.Mutex
	clock   int64 // samples written since the stream started
	sources []*playbackSource

	closeOnce sync.Once
	closeErr  error
}

type playbackSource struct {
	speaker *Speaker
	samples []float32
	start   int64 // device clock position of the first sample
	onEnded func()

	// Guarded by speaker.mu.
	finished bool
}

func newSpeaker(volume float64, logger *zap.Logger) (*Speaker, error) {
	if volume < 0 || volume > 1 {
		return nil, fmt.Errorf("volume %f out of range [0, 1]", volume)
	}
	s := &Speaker{
		logger: logger,
		volume: float32(volume),
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, audio.OutputSampleRate, playbackFrameSize, s.fill)
	if err != nil {
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start playback stream: %w", err)
	}

	logger.Info("Speaker opened",
		zap.Int("sampleRate", audio.OutputSampleRate),
		zap.Float64("volume", volume))
	return s, nil
}

// Now returns the device clock in seconds.
func (s *Speaker) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.clock) / audio.OutputSampleRate
}

// Start schedules samples to begin at the given device time. Segments
// scheduled in the past are clipped to the current clock rather than
// shifted, preserving alignment with segments scheduled after them.
func (s *Speaker) Start(samples []float32, at float64, onEnded func()) (repositories.PlaybackHandle, error) {
	if at < 0 {
		return nil, fmt.Errorf("start time %f is negative", at)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	source := &playbackSource{
		speaker: s,
		samples: samples,
		start:   int64(math.Round(at * audio.OutputSampleRate)),
		onEnded: onEnded,
	}
	s.sources = append(s.sources, source)
	return source, nil
}

// Close stops playback and releases the device. Idempotent.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn("Failed to stop playback stream", zap.Error(err))
		}
		s.closeErr = s.stream.Close()

		s.mu.Lock()
		s.sources = nil
		s.mu.Unlock()
	})
	return s.closeErr
}

// fill runs on the PortAudio callback goroutine. It mixes every live
// segment overlapping the current window into the output buffer and
// advances the device clock by one window.
func (s *Speaker) fill(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	windowStart := s.clock
	windowEnd := windowStart + int64(len(out))

	var ended []func()
	live := s.sources[:0]
	for _, source := range s.sources {
		segEnd := source.start + int64(len(source.samples))
		if segEnd <= windowStart {
			// Ran out entirely before this window.
			source.finished = true
			if source.onEnded != nil {
				ended = append(ended, source.onEnded)
			}
			continue
		}
		from := max64(source.start, windowStart)
		to := min64(segEnd, windowEnd)
		for t := from; t < to; t++ {
			mixed := out[t-windowStart] + source.samples[t-source.start]*s.volume
			if mixed > 1 {
				mixed = 1
			}
			if mixed < -1 {
				mixed = -1
			}
			out[t-windowStart] = mixed
		}
		if segEnd <= windowEnd {
			source.finished = true
			if source.onEnded != nil {
				ended = append(ended, source.onEnded)
			}
			continue
		}
		live = append(live, source)
	}
	s.sources = live
	s.clock = windowEnd
	s.mu.Unlock()

	// Completion callbacks run off the realtime path.
	for _, fn := range ended {
		go fn()
	}
}

// Stop halts the source immediately without firing its completion
// callback. Stopping a finished source is a no-op.
func (p *playbackSource) Stop() error {
	s := p.speaker
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.finished {
		return nil
	}
	p.finished = true
	for i, source := range s.sources {
		if source == p {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			break
		}
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/audio"
)

// PlaybackScheduler owns the gapless-playback cursor and the set of
// in-flight playback sources. Buffers scheduled in arrival order play
// back-to-back with no silent gap and no overlap. All methods must be
// called from the session event loop; the sink's onEnded callbacks are
// routed back into that loop through the notify function.
type PlaybackScheduler struct {
	sink   repositories.PlaybackSink
	logger *zap.Logger

	// notify posts a source-ended signal back to the event loop, which
	// then calls SourceEnded. onIdle fires when the last active source
	// ends, i.e. the model finished speaking.
	notify func(repositories.PlaybackHandle)
	onIdle func()

	nextStart float64
	active    map[repositories.PlaybackHandle]struct{}
}

// NewPlaybackScheduler creates a scheduler playing on sink.
func NewPlaybackScheduler(
	sink repositories.PlaybackSink,
	notify func(repositories.PlaybackHandle),
	onIdle func(),
	logger *zap.Logger,
) *PlaybackScheduler {
	return &PlaybackScheduler{
		sink:   sink,
		logger: logger,
		notify: notify,
		onIdle: onIdle,
		active: make(map[repositories.PlaybackHandle]struct{}),
	}
}

// Schedule queues buf to begin exactly when the previously scheduled
// buffer ends, or immediately if the cursor has fallen behind the device
// clock, then advances the cursor by the buffer's duration.
func (s *PlaybackScheduler) Schedule(buf *audio.Buffer) error {
	if now := s.sink.Now(); s.nextStart < now {
		s.nextStart = now
	}
	start := s.nextStart

	var source repositories.PlaybackHandle
	source, err := s.sink.Start(buf.Samples, start, func() {
		s.notify(source)
	})
	if err != nil {
		return fmt.Errorf("start playback source: %w", err)
	}

	s.active[source] = struct{}{}
	s.nextStart = start + buf.Duration()
	return nil
}

// SourceEnded removes a finished source from the active set. When the set
// becomes empty the model has finished speaking.
func (s *PlaybackScheduler) SourceEnded(source repositories.PlaybackHandle) {
	if _, ok := s.active[source]; !ok {
		return
	}
	delete(s.active, source)
	if len(s.active) == 0 && s.onIdle != nil {
		s.onIdle()
	}
}

// Interrupt force-stops every active source and resets the cursor, so the
// next scheduled buffer starts at the current device time. Stop failures
// on already-finished sources are ignored.
func (s *PlaybackScheduler) Interrupt() {
	for source := range s.active {
		if err := source.Stop(); err != nil {
			s.logger.Debug("stopping playback source", zap.Error(err))
		}
		delete(s.active, source)
	}
	s.nextStart = 0
}

// Teardown has the same effect as Interrupt and is called when the
// session ends.
func (s *PlaybackScheduler) Teardown() {
	s.Interrupt()
}

// Speaking reports whether model audio is currently or about to be
// audibly playing.
func (s *PlaybackScheduler) Speaking() bool {
	return len(s.active) > 0
}

// Cursor returns the next start time on the device clock, in seconds.
func (s *PlaybackScheduler) Cursor() float64 {
	return s.nextStart
}

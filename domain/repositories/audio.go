package repositories

// AudioCapture is an open microphone stream delivering fixed-size frames
// of mono samples in the range [-1, 1] at the configured input rate.
type AudioCapture interface {
	// Close stops the stream and releases the device. Idempotent.
	Close() error
}

// PlaybackHandle is a live playback source scheduled on a sink.
type PlaybackHandle interface {
	// Stop halts playback immediately. Stopping a source that already
	// finished is a no-op, not an error.
	Stop() error
}

// PlaybackSink plays sample buffers against the output device clock.
type PlaybackSink interface {
	// Now returns the device clock in seconds.
	Now() float64
	// Start schedules samples to begin playing at the given device time
	// and invokes onEnded once playback runs out. onEnded is never
	// invoked before Start returns, and is not invoked for sources that
	// were stopped explicitly.
	Start(samples []float32, at float64, onEnded func()) (PlaybackHandle, error)
	// Close stops all playback and releases the device. Idempotent.
	Close() error
}

// AudioDeviceProvider acquires session-scoped capture and playback
// devices. Each opened device is owned by exactly one session and must be
// closed when the session ends.
type AudioDeviceProvider interface {
	OpenCapture(onFrame func([]float32)) (AudioCapture, error)
	OpenPlayback(volume float64) (PlaybackSink, error)
}

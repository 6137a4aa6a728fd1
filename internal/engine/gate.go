package engine

import "sync/atomic"

// TalkMode selects how captured frames are gated before transmission.
type TalkMode int32

const (
	// TalkModeContinuous transmits every captured frame while connected.
	TalkModeContinuous TalkMode = iota
	// TalkModePushToTalk transmits only while the push-to-talk gesture is
	// held.
	TalkModePushToTalk
)

// String returns the mode name used in configuration and the monitor API.
func (m TalkMode) String() string {
	if m == TalkModePushToTalk {
		return "push-to-talk"
	}
	return "continuous"
}

// CaptureGate decides, per captured frame, whether to transmit it. Mode
// and pressed state are updated from command goroutines while decisions
// happen on the capture callback path, so both are stored atomically: a
// frame is always gated by the latest value at the moment it is produced.
// The decision itself is pure and has no side effects.
type CaptureGate struct {
	mode    atomic.Int32
	pressed atomic.Bool
}

// NewCaptureGate creates a gate starting in the given mode.
func NewCaptureGate(mode TalkMode) *CaptureGate {
	g := &CaptureGate{}
	g.mode.Store(int32(mode))
	return g
}

// SetMode switches the talk mode; it affects only frames produced after
// the switch.
func (g *CaptureGate) SetMode(mode TalkMode) {
	g.mode.Store(int32(mode))
}

// Mode returns the current talk mode.
func (g *CaptureGate) Mode() TalkMode {
	return TalkMode(g.mode.Load())
}

// SetPressed updates the push-to-talk pressed flag.
func (g *CaptureGate) SetPressed(pressed bool) {
	g.pressed.Store(pressed)
}

// ShouldTransmit reports whether a frame produced now should be sent.
func (g *CaptureGate) ShouldTransmit(connected bool) bool {
	if !connected {
		return false
	}
	if TalkMode(g.mode.Load()) == TalkModeContinuous {
		return true
	}
	return g.pressed.Load()
}

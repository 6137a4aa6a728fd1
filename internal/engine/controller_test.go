package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wicaksana/swara/domain/entities"
	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/audio"
)

type fakeChannel struct {
	mu     sync.Mutex
	audio  []entities.AudioBlob
	texts  []string
	closed bool
}

func (f *fakeChannel) SendAudio(_ context.Context, blob entities.AudioBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, blob)
	return nil
}

func (f *fakeChannel) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) SentAudio() []entities.AudioBlob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.AudioBlob, len(f.audio))
	copy(out, f.audio)
	return out
}

func (f *fakeChannel) SentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

func (f *fakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu         sync.Mutex
	channel    *fakeChannel
	callbacks  repositories.ChannelCallbacks
	connectErr error
	connects   int
}

func (f *fakeDialer) Connect(_ context.Context, _ repositories.ChannelConfig, callbacks repositories.ChannelCallbacks) (repositories.ConversationChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.callbacks = callbacks
	f.channel = &fakeChannel{}
	return f.channel, nil
}

func (f *fakeDialer) SetConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeDialer) Callbacks() repositories.ChannelCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks
}

func (f *fakeDialer) Channel() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

type fakeCapture struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDevices struct {
	mu      sync.Mutex
	sink    *fakeSink
	capture *fakeCapture
	onFrame func([]float32)

	playbackErr error
	captureErr  error
}

func (f *fakeDevices) OpenCapture(onFrame func([]float32)) (repositories.AudioCapture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	f.onFrame = onFrame
	f.capture = &fakeCapture{}
	return f.capture, nil
}

func (f *fakeDevices) OpenPlayback(_ float64) (repositories.PlaybackSink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playbackErr != nil {
		return nil, f.playbackErr
	}
	f.sink = &fakeSink{}
	return f.sink, nil
}

func (f *fakeDevices) OnFrame() func([]float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onFrame
}

func (f *fakeDevices) Sink() *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

func (f *fakeDevices) Capture() *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture
}

type controllerFixture struct {
	ctrl    *Controller
	dialer  *fakeDialer
	devices *fakeDevices
	cancel  context.CancelFunc
}

func newControllerFixture(t *testing.T, mode TalkMode) *controllerFixture {
	t.Helper()
	dialer := &fakeDialer{}
	devices := &fakeDevices{}
	ctrl := NewController(ControllerConfig{
		Channel:  repositories.ChannelConfig{Model: "test-model", Voice: "test-voice"},
		TalkMode: mode,
		Volume:   1.0,
	}, dialer, devices, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	t.Cleanup(func() {
		ctrl.Shutdown()
		cancel()
	})
	return &controllerFixture{ctrl: ctrl, dialer: dialer, devices: devices, cancel: cancel}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitForState(t *testing.T, ctrl *Controller, state entities.SessionState) {
	t.Helper()
	waitFor(t, "state "+string(state), func() bool { return ctrl.State() == state })
}

func (fx *controllerFixture) connect(t *testing.T) {
	t.Helper()
	fx.ctrl.Start()
	waitFor(t, "dial", func() bool { return fx.dialer.Channel() != nil })
	fx.dialer.Callbacks().OnOpen()
	waitForState(t, fx.ctrl, entities.SessionStateConnected)
}

func TestStartTransitionsThroughConnecting(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)

	if fx.ctrl.State() != entities.SessionStateDisconnected {
		t.Fatalf("Expected initial state disconnected, got %s", fx.ctrl.State())
	}

	fx.ctrl.Start()
	waitForState(t, fx.ctrl, entities.SessionStateConnecting)
	waitFor(t, "dial", func() bool { return fx.dialer.Channel() != nil })

	fx.dialer.Callbacks().OnOpen()
	waitForState(t, fx.ctrl, entities.SessionStateConnected)
}

func TestStartFailureReleasesAcquiredDevices(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.dialer.SetConnectErr(errors.New("endpoint unreachable"))

	fx.ctrl.Start()
	waitForState(t, fx.ctrl, entities.SessionStateError)

	if sink := fx.devices.Sink(); sink == nil || !sink.Closed() {
		t.Error("Expected output device released after failed startup")
	}
	if capture := fx.devices.Capture(); capture == nil || !capture.Closed() {
		t.Error("Expected microphone released after failed startup")
	}
}

func TestRetryAfterError(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.dialer.SetConnectErr(errors.New("endpoint unreachable"))

	fx.ctrl.Start()
	waitForState(t, fx.ctrl, entities.SessionStateError)

	fx.dialer.SetConnectErr(nil)
	fx.ctrl.Retry()
	waitFor(t, "dial", func() bool { return fx.dialer.Channel() != nil })
	fx.dialer.Callbacks().OnOpen()
	waitForState(t, fx.ctrl, entities.SessionStateConnected)
}

func TestStopTearsDownSession(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	fx.ctrl.Stop()
	waitForState(t, fx.ctrl, entities.SessionStateDisconnected)

	if !fx.dialer.Channel().Closed() {
		t.Error("Expected channel closed on stop")
	}
	if !fx.devices.Capture().Closed() {
		t.Error("Expected microphone released on stop")
	}

	// Stopping again is a no-op.
	fx.ctrl.Stop()
	waitForState(t, fx.ctrl, entities.SessionStateDisconnected)
}

func TestChannelErrorEntersErrorState(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	fx.dialer.Callbacks().OnError(errors.New("stream reset"))
	waitForState(t, fx.ctrl, entities.SessionStateError)

	if !fx.dialer.Channel().Closed() {
		t.Error("Expected channel closed after failure")
	}
}

func TestRemoteCloseReturnsToDisconnected(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	fx.dialer.Callbacks().OnClose()
	waitForState(t, fx.ctrl, entities.SessionStateDisconnected)
}

func TestCapturedFramesAreEncodedAndSent(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	samples := []float32{0, 0.5, -0.5, 1.0}
	fx.devices.OnFrame()(samples)

	waitFor(t, "frame transmission", func() bool { return len(fx.dialer.Channel().SentAudio()) == 1 })
	sent := fx.dialer.Channel().SentAudio()[0]
	expected := audio.EncodeFrame(samples)
	if sent.Data != expected.Data || sent.MIMEType != expected.MIMEType {
		t.Error("Expected transmitted blob to match the encoded frame")
	}
}

func TestPushToTalkGatesCapturedFrames(t *testing.T) {
	fx := newControllerFixture(t, TalkModePushToTalk)
	fx.connect(t)

	samples := []float32{0.1, 0.2}
	fx.devices.OnFrame()(samples)
	time.Sleep(50 * time.Millisecond)
	if got := len(fx.dialer.Channel().SentAudio()); got != 0 {
		t.Fatalf("Expected no frames while unpressed, got %d", got)
	}

	fx.ctrl.SetPushToTalk(true)
	fx.devices.OnFrame()(samples)
	waitFor(t, "pressed frame transmission", func() bool { return len(fx.dialer.Channel().SentAudio()) == 1 })

	fx.ctrl.SetPushToTalk(false)
	fx.devices.OnFrame()(samples)
	time.Sleep(50 * time.Millisecond)
	if got := len(fx.dialer.Channel().SentAudio()); got != 1 {
		t.Errorf("Expected 1 frame after release, got %d", got)
	}
}

func TestTurnCompleteFinalizesHistory(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)
	cb := fx.dialer.Callbacks()

	cb.OnMessage(repositories.ServerEvent{InputTranscript: "what is "})
	cb.OnMessage(repositories.ServerEvent{InputTranscript: "the time"})
	cb.OnMessage(repositories.ServerEvent{OutputTranscript: "it is noon"})
	cb.OnMessage(repositories.ServerEvent{TurnComplete: true})

	waitFor(t, "history", func() bool { return fx.ctrl.History().Len() == 2 })
	messages := fx.ctrl.History().Messages()
	if messages[0].Sender != entities.SenderUser || messages[0].Text != "what is the time" {
		t.Errorf("Unexpected user message: %s %q", messages[0].Sender, messages[0].Text)
	}
	if messages[1].Sender != entities.SenderModel || messages[1].Text != "it is noon" {
		t.Errorf("Unexpected model message: %s %q", messages[1].Sender, messages[1].Text)
	}
}

func TestInboundAudioIsScheduledInOrder(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	chunkA := audio.EncodeFrame(make([]float32, 2400))
	chunkB := audio.EncodeFrame(make([]float32, 1200))
	fx.dialer.Callbacks().OnMessage(repositories.ServerEvent{
		AudioChunks: []entities.AudioBlob{chunkA, chunkB},
	})

	sink := fx.devices.Sink()
	waitFor(t, "scheduled playback", func() bool { return len(sink.Starts()) == 2 })
	starts := sink.Starts()
	if len(starts[0].samples) != 2400 || len(starts[1].samples) != 1200 {
		t.Errorf("Expected chunks scheduled in arrival order, got lengths %d, %d",
			len(starts[0].samples), len(starts[1].samples))
	}
	if starts[1].at <= starts[0].at {
		t.Errorf("Expected back-to-back scheduling, got starts %f and %f", starts[0].at, starts[1].at)
	}
	waitFor(t, "speaking", fx.ctrl.Speaking)
}

func TestMalformedChunkIsDroppedStreamContinues(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	good := audio.EncodeFrame(make([]float32, 1200))
	fx.dialer.Callbacks().OnMessage(repositories.ServerEvent{
		AudioChunks: []entities.AudioBlob{{Data: "not base64!!"}, good},
	})

	sink := fx.devices.Sink()
	waitFor(t, "scheduled playback", func() bool { return len(sink.Starts()) == 1 })
	if got := len(sink.Starts()[0].samples); got != 1200 {
		t.Errorf("Expected the valid chunk scheduled, got %d samples", got)
	}
}

func TestInterruptionStopsPlayback(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	chunk := audio.EncodeFrame(make([]float32, 2400))
	fx.dialer.Callbacks().OnMessage(repositories.ServerEvent{
		AudioChunks: []entities.AudioBlob{chunk},
	})
	sink := fx.devices.Sink()
	waitFor(t, "scheduled playback", func() bool { return len(sink.Starts()) == 1 })
	waitFor(t, "speaking", fx.ctrl.Speaking)

	fx.dialer.Callbacks().OnMessage(repositories.ServerEvent{Interrupted: true})
	waitFor(t, "silence", func() bool { return !fx.ctrl.Speaking() })
	if !sink.Starts()[0].source.Stopped() {
		t.Error("Expected active source force-stopped on interruption")
	}

	// Audio arriving after the interruption belongs to the new response and
	// plays normally.
	fx.dialer.Callbacks().OnMessage(repositories.ServerEvent{
		AudioChunks: []entities.AudioBlob{chunk},
	})
	waitFor(t, "post-interrupt playback", func() bool { return len(sink.Starts()) == 2 })
}

func TestSendTextAppendsUserMessage(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	fx.ctrl.SendText("hello there")
	waitFor(t, "text transmission", func() bool { return len(fx.dialer.Channel().SentTexts()) == 1 })
	if got := fx.dialer.Channel().SentTexts()[0]; got != "hello there" {
		t.Errorf("Expected sent text %q, got %q", "hello there", got)
	}

	waitFor(t, "history", func() bool { return fx.ctrl.History().Len() == 1 })
	msg := fx.ctrl.History().Messages()[0]
	if msg.Sender != entities.SenderUser || msg.Text != "hello there" {
		t.Errorf("Unexpected history entry: %s %q", msg.Sender, msg.Text)
	}
}

func TestSendTextWhileDisconnectedIsDropped(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)

	fx.ctrl.SendText("premature")
	time.Sleep(50 * time.Millisecond)
	if fx.ctrl.History().Len() != 0 {
		t.Error("Expected no history entry while disconnected")
	}
}

func TestShutdownClosesNotificationStream(t *testing.T) {
	fx := newControllerFixture(t, TalkModeContinuous)
	fx.connect(t)

	fx.ctrl.Shutdown()
	waitFor(t, "notification stream close", func() bool {
		for {
			select {
			case _, ok := <-fx.ctrl.Notifications():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	})
	if !fx.dialer.Channel().Closed() {
		t.Error("Expected channel closed on shutdown")
	}
}

package engine

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wicaksana/swara/domain/entities"
	"github.com/wicaksana/swara/domain/repositories"
	"github.com/wicaksana/swara/internal/audio"
)

// ControllerConfig configures one voice session.
type ControllerConfig struct {
	Channel  repositories.ChannelConfig
	TalkMode TalkMode
	// Volume is the output gain in [0, 1].
	Volume float64
}

// Controller owns the session lifecycle and wires capture, encoding,
// transmission, decoding, playback scheduling and transcript aggregation
// together. It is a single-threaded actor: every external signal becomes
// an event on one ordered queue, and the Run loop processes events to
// completion one at a time. Device callbacks and the channel receive loop
// only post events; they never touch engine state directly.
type Controller struct {
	cfg     ControllerConfig
	dialer  repositories.ChannelDialer
	devices repositories.AudioDeviceProvider
	logger  *zap.Logger

	gate       *CaptureGate
	history    *entities.History
	transcript *TranscriptAggregator

	// Session-scoped resources, owned by the event loop. Nil while no
	// session is active.
	channel    repositories.ConversationChannel
	capture    repositories.AudioCapture
	sink       repositories.PlaybackSink
	scheduler  *PlaybackScheduler
	sequencer  *Sequencer
	sessionCtx context.Context
	cancel     context.CancelFunc

	state     entities.SessionState
	stateRead atomic.Value // entities.SessionState, for observer goroutines
	connected atomic.Bool  // read on the capture callback path
	speaking  atomic.Bool

	events chan event
	notifs chan Notification
	done   chan struct{}
}

// NewController creates a controller. Call Run to start processing.
func NewController(
	cfg ControllerConfig,
	dialer repositories.ChannelDialer,
	devices repositories.AudioDeviceProvider,
	logger *zap.Logger,
) *Controller {
	history := entities.NewHistory()
	c := &Controller{
		cfg:        cfg,
		dialer:     dialer,
		devices:    devices,
		logger:     logger,
		gate:       NewCaptureGate(cfg.TalkMode),
		history:    history,
		transcript: NewTranscriptAggregator(history),
		state:      entities.SessionStateDisconnected,
		events:     make(chan event, 1024),
		notifs:     make(chan Notification, 256),
		done:       make(chan struct{}),
	}
	c.stateRead.Store(entities.SessionStateDisconnected)
	return c
}

// Run processes events until Shutdown is called or ctx is cancelled. It
// tears the active session down before returning and closes the
// notification channel.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.notifs)
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			c.setState(entities.SessionStateDisconnected)
			return
		case ev := <-c.events:
			if _, ok := ev.(shutdownEvent); ok {
				c.teardown()
				c.setState(entities.SessionStateDisconnected)
				return
			}
			c.handle(ev)
		}
	}
}

// Start requests a new session. No-op unless disconnected or errored.
func (c *Controller) Start() { c.post(startEvent{}) }

// Stop requests session teardown. Idempotent; stopping an inactive
// session is a no-op.
func (c *Controller) Stop() { c.post(stopEvent{}) }

// Retry re-runs the startup sequence after an error.
func (c *Controller) Retry() { c.post(retryEvent{}) }

// Shutdown stops the session and terminates the Run loop.
func (c *Controller) Shutdown() {
	select {
	case <-c.done:
		return
	default:
	}
	c.post(shutdownEvent{})
}

// SendText submits a typed user message.
func (c *Controller) SendText(text string) {
	if text == "" {
		return
	}
	c.post(sendTextEvent{text: text})
}

// SetTalkMode switches capture gating mode. Takes effect on the next
// captured frame.
func (c *Controller) SetTalkMode(mode TalkMode) { c.gate.SetMode(mode) }

// TalkMode returns the current capture gating mode.
func (c *Controller) TalkMode() TalkMode { return c.gate.Mode() }

// SetPushToTalk updates the push-to-talk pressed flag. Takes effect on
// the next captured frame.
func (c *Controller) SetPushToTalk(pressed bool) { c.gate.SetPressed(pressed) }

// State returns the current session state.
func (c *Controller) State() entities.SessionState {
	return c.stateRead.Load().(entities.SessionState)
}

// Speaking reports whether model audio is audibly playing.
func (c *Controller) Speaking() bool { return c.speaking.Load() }

// History returns the conversation history.
func (c *Controller) History() *entities.History { return c.history }

// Notifications returns the observable event stream. The channel is
// closed when Run returns.
func (c *Controller) Notifications() <-chan Notification { return c.notifs }

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// postFrame drops frames rather than blocking the audio callback when the
// loop is saturated.
func (c *Controller) postFrame(samples []float32) {
	select {
	case c.events <- frameEvent{samples: samples}:
	default:
		c.logger.Warn("event queue saturated, dropping captured frame")
	}
}

func (c *Controller) emit(n Notification) {
	select {
	case c.notifs <- n:
	default:
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case startEvent:
		c.handleStart()
	case retryEvent:
		if c.state != entities.SessionStateError {
			c.logger.Warn("retry requested outside error state", zap.String("state", string(c.state)))
			return
		}
		c.handleStart()
	case stopEvent:
		c.handleStop()
	case sendTextEvent:
		c.handleSendText(ev.text)
	case frameEvent:
		c.handleFrame(ev.samples)
	case channelOpenEvent:
		c.handleChannelOpen()
	case channelErrorEvent:
		c.handleChannelError(ev.err)
	case channelCloseEvent:
		c.handleChannelClose()
	case inboundEvent:
		c.handleInbound(ev.msg)
	case decodedEvent:
		c.handleDecoded(ev.buf, ev.generation)
	case sourceEndedEvent:
		if c.scheduler != nil {
			c.scheduler.SourceEnded(ev.source)
		}
	}
}

// handleStart runs the startup sequence: acquire the output device and
// microphone, then open the channel. Acquisition failures surface as the
// error state with everything already-acquired released again.
func (c *Controller) handleStart() {
	if c.state == entities.SessionStateConnecting || c.state == entities.SessionStateConnected {
		c.logger.Warn("start requested while session active", zap.String("state", string(c.state)))
		return
	}
	c.setState(entities.SessionStateConnecting)
	c.sessionCtx, c.cancel = context.WithCancel(context.Background())

	sink, err := c.devices.OpenPlayback(c.cfg.Volume)
	if err != nil {
		c.logger.Error("acquiring output device", zap.Error(err))
		c.failStartup()
		return
	}
	c.sink = sink

	capture, err := c.devices.OpenCapture(c.onFrame)
	if err != nil {
		c.logger.Error("acquiring microphone", zap.Error(err))
		c.failStartup()
		return
	}
	c.capture = capture

	c.scheduler = NewPlaybackScheduler(
		sink,
		func(source repositories.PlaybackHandle) { c.post(sourceEndedEvent{source: source}) },
		func() {
			c.speaking.Store(false)
			c.emit(Notification{Type: NotificationSpeaking, Speaking: false})
		},
		c.logger,
	)
	c.sequencer = NewSequencer(func(buf *audio.Buffer, generation uint64) {
		c.post(decodedEvent{buf: buf, generation: generation})
	}, c.logger)

	channel, err := c.dialer.Connect(c.sessionCtx, c.cfg.Channel, repositories.ChannelCallbacks{
		OnOpen:    func() { c.post(channelOpenEvent{}) },
		OnMessage: func(msg repositories.ServerEvent) { c.post(inboundEvent{msg: msg}) },
		OnError:   func(err error) { c.post(channelErrorEvent{err: err}) },
		OnClose:   func() { c.post(channelCloseEvent{}) },
	})
	if err != nil {
		c.logger.Error("opening conversation channel", zap.Error(err))
		c.failStartup()
		return
	}
	c.channel = channel
}

func (c *Controller) failStartup() {
	c.teardown()
	c.setState(entities.SessionStateError)
}

// onFrame runs on the capture device's callback goroutine. Gating is
// evaluated here so each frame is judged by the state current at the
// moment it was produced.
func (c *Controller) onFrame(samples []float32) {
	if !c.gate.ShouldTransmit(c.connected.Load()) {
		return
	}
	c.postFrame(samples)
}

func (c *Controller) handleChannelOpen() {
	if c.state != entities.SessionStateConnecting {
		return
	}
	c.setState(entities.SessionStateConnected)
	c.connected.Store(true)
	c.logger.Info("session connected",
		zap.String("model", c.cfg.Channel.Model),
		zap.String("voice", c.cfg.Channel.Voice))
}

func (c *Controller) handleFrame(samples []float32) {
	if c.state != entities.SessionStateConnected {
		return
	}
	blob := audio.EncodeFrame(samples)
	if err := c.channel.SendAudio(c.sessionCtx, blob); err != nil {
		c.logger.Warn("sending captured frame", zap.Error(err))
	}
}

// handleInbound processes one inbound delivery in its fixed logical
// order: transcription accounting, turn finalization, interruption, then
// audio scheduling.
func (c *Controller) handleInbound(msg repositories.ServerEvent) {
	if c.state != entities.SessionStateConnected {
		return
	}

	if msg.InputTranscript != "" {
		c.transcript.AppendInput(msg.InputTranscript)
		c.emit(Notification{Type: NotificationTranscript, Sender: entities.SenderUser, Text: msg.InputTranscript})
	}
	if msg.OutputTranscript != "" {
		c.transcript.AppendOutput(msg.OutputTranscript)
		c.emit(Notification{Type: NotificationTranscript, Sender: entities.SenderModel, Text: msg.OutputTranscript})
	}
	if msg.TurnComplete {
		for _, finalized := range c.transcript.CompleteTurn() {
			m := finalized
			c.emit(Notification{Type: NotificationMessage, Message: &m})
		}
	}
	if msg.Interrupted {
		c.logger.Info("barge-in, discarding in-flight model audio")
		c.sequencer.Flush()
		c.scheduler.Interrupt()
		if c.speaking.Swap(false) {
			c.emit(Notification{Type: NotificationSpeaking, Speaking: false})
		}
	}
	for _, chunk := range msg.AudioChunks {
		payload := chunk.Data
		c.sequencer.Submit(func() (*audio.Buffer, error) {
			return audio.DecodePayload(payload)
		})
	}
}

func (c *Controller) handleDecoded(buf *audio.Buffer, generation uint64) {
	if c.state != entities.SessionStateConnected || c.sequencer == nil {
		return
	}
	// A flush may have raced the delivery; stale buffers belong to
	// interrupted speech and must not be scheduled.
	if generation != c.sequencer.Generation() {
		return
	}
	if err := c.scheduler.Schedule(buf); err != nil {
		c.logger.Warn("scheduling decoded buffer", zap.Error(err))
		return
	}
	if !c.speaking.Swap(true) {
		c.emit(Notification{Type: NotificationSpeaking, Speaking: true})
	}
}

func (c *Controller) handleSendText(text string) {
	if c.state != entities.SessionStateConnected {
		c.logger.Warn("text submitted while not connected")
		return
	}
	if err := c.channel.SendText(c.sessionCtx, text); err != nil {
		c.logger.Error("sending text message", zap.Error(err))
		return
	}
	msg := entities.NewMessage(entities.SenderUser, text)
	c.history.Append(msg)
	c.emit(Notification{Type: NotificationMessage, Message: &msg})
}

func (c *Controller) handleStop() {
	if c.state == entities.SessionStateDisconnected {
		return
	}
	c.teardown()
	c.setState(entities.SessionStateDisconnected)
}

func (c *Controller) handleChannelError(err error) {
	if c.state == entities.SessionStateDisconnected || c.state == entities.SessionStateError {
		return
	}
	c.logger.Error("channel failure", zap.Error(err))
	c.teardown()
	c.setState(entities.SessionStateError)
}

func (c *Controller) handleChannelClose() {
	if c.state != entities.SessionStateConnecting && c.state != entities.SessionStateConnected {
		return
	}
	c.logger.Info("channel closed by remote")
	c.teardown()
	c.setState(entities.SessionStateDisconnected)
}

// teardown releases every session-scoped resource. Safe to call from any
// state and any number of times; stopping already-stopped resources is a
// no-op. After teardown no in-flight decode or playback completion can
// touch scheduler or transcript state.
func (c *Controller) teardown() {
	c.connected.Store(false)

	if c.sequencer != nil {
		c.sequencer.Close()
		c.sequencer = nil
	}
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Debug("closing channel", zap.Error(err))
		}
		c.channel = nil
	}
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			c.logger.Debug("closing capture stream", zap.Error(err))
		}
		c.capture = nil
	}
	if c.scheduler != nil {
		c.scheduler.Teardown()
		c.scheduler = nil
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			c.logger.Debug("closing output device", zap.Error(err))
		}
		c.sink = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.speaking.Swap(false) {
		c.emit(Notification{Type: NotificationSpeaking, Speaking: false})
	}
}

func (c *Controller) setState(state entities.SessionState) {
	if c.state == state {
		return
	}
	c.logger.Info("session state changed",
		zap.String("from", string(c.state)),
		zap.String("to", string(state)))
	c.state = state
	c.stateRead.Store(state)
	c.emit(Notification{Type: NotificationState, State: state})
}

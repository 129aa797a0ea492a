package live

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oratio-ai/oratio/pkg/audio"
	"github.com/oratio-ai/oratio/pkg/live/protocol"
	"github.com/oratio-ai/oratio/pkg/metrics"
)

// primingMarker accompanies the initial silence frame so the service
// opens its response stream. Transcriptions of the marker are filtered
// out of the session transcript.
const primingMarker = "session-start"

const eventBufferSize = 64

// Session drives one end-to-end voice conversation: it owns the
// connection, the capture pipeline, the playback scheduler, the
// transcript, and the reconnect loop. Callers observe it through the
// Events channel and control it with SetMuted, Pause, Resume and End.
type Session struct {
	cfg     SessionConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	events    chan Event
	scheduler *Scheduler
	capture   *audio.CaptureBuffer

	mu              sync.Mutex
	state           State
	conn            sessionConn
	sessionID       string
	muted           bool
	paused          bool
	diedWhilePaused bool
	transcript      []TranscriptItem
	userPartial     strings.Builder
	agentPartial    strings.Builder
	startedAt       time.Time
	endOnce         sync.Once
	done            chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	policy *ReconnectPolicy

	// test hooks
	dial  dialFunc
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSession validates the configuration and builds an idle session.
// sink may be nil; audio then accumulates in the scheduler untouched,
// which is only useful for tests.
func NewSession(cfg SessionConfig, sink Sink, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:     cfg,
		logger:  logger.With("component", "session"),
		metrics: m,
		events:  make(chan Event, eventBufferSize),
		state:   StateIdle,
		done:    make(chan struct{}),
		policy:  NewReconnectPolicy(cfg.ReconnectBase, cfg.ReconnectCap, cfg.ReconnectMaxAttempts),
		dial:    dialSession,
		sleep:   sleepCtx,
		now:     time.Now,
	}
	s.scheduler = NewScheduler(SchedulerConfig{Sink: sink, Logger: logger})
	s.capture = audio.NewCaptureBuffer(cfg.FrameSize, s.onCaptureFrame)
	return s, nil
}

// Events returns the channel the session publishes on. Slow consumers
// lose events rather than stalling the audio path.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the service-assigned identifier, empty before the
// first successful handshake.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Start connects to the service and begins streaming. It blocks until
// the handshake completes or fails; once it returns nil the read loop
// and playback pump are running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return &ConnectError{Kind: KindInvalidConfig, Message: "session already started"}
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = s.now()
	s.mu.Unlock()

	s.setState(StateConnecting)
	conn, err := s.dial(s.ctx, s.cfg, s.setupMessage(nil), s.logger)
	if err != nil {
		s.cancel()
		s.setState(StateErrored)
		s.emit(&ErrorEvent{Code: string(kindOf(err)), Message: err.Error(), Terminal: true})
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.sessionID = conn.SessionID()
	s.mu.Unlock()

	s.prime(conn)
	s.policy.Begin()
	s.scheduler.Reset()
	s.scheduler.Start()
	s.setState(StateConnected)
	s.emit(&ConnectedEvent{SessionID: conn.SessionID()})
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	s.wg.Add(1)
	go s.readLoop(conn)
	return nil
}

// prime sends a short silence frame plus the start marker so the agent
// speaks first without waiting for real mic input.
func (s *Session) prime(conn sessionConn) {
	frame := audio.SilenceFrame(s.cfg.FrameSize)
	if err := conn.SendAudio(frame.Data, frame.MIMEType); err != nil {
		s.logger.Warn("priming frame failed", "error", err)
		return
	}
	if err := conn.SendMarker(primingMarker); err != nil {
		s.logger.Warn("priming marker failed", "error", err)
	}
}

// PushAudio feeds raw mic samples into the capture pipeline. The slice
// is consumed synchronously and may be reused by the caller.
func (s *Session) PushAudio(samples []float32) {
	s.capture.Push(samples)
}

// onCaptureFrame encodes one full frame and ships it. The capture
// buffer already substituted silence if the session is muted or paused;
// the frame cadence never changes, which keeps the service's activity
// detection fed.
func (s *Session) onCaptureFrame(samples []float32) {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected || s.state == StatePaused
	silent := s.muted || s.paused
	s.mu.Unlock()
	if conn == nil || !connected {
		return
	}

	frame, err := audio.Encode(samples, s.cfg.CaptureRate)
	if err != nil {
		s.logger.Warn("encode failed", "error", err)
		return
	}
	if err := conn.SendAudio(frame.Data, frame.MIMEType); err != nil {
		// Frames are latency-sensitive; a failed send is dropped, not
		// retried. The read loop owns disconnect handling.
		s.logger.Debug("frame send failed", "error", err)
		if s.metrics != nil {
			s.metrics.FramesDropped.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.FramesSent.Inc()
		s.metrics.AudioBytesIn.Add(float64(len(frame.Data)))
		if silent {
			s.metrics.SilenceFrames.Inc()
		}
	}
}

// SetMuted toggles mic muting. While muted the session keeps sending
// silence frames at the normal cadence.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	if s.muted == muted {
		s.mu.Unlock()
		return
	}
	s.muted = muted
	silent := muted || s.paused
	s.mu.Unlock()

	// Outside s.mu: the capture callback takes locks in the other order.
	s.capture.SetMuted(silent)
	s.emit(&MutedEvent{Muted: muted})
}

// Muted reports whether the user muted the mic. A paused session also
// sends silence, but that is not reflected here.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Pause freezes playback and silences the mic without dropping queued
// audio. If the connection dies while paused, reconnection is deferred
// until Resume.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.paused || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()

	s.capture.SetMuted(true)
	s.scheduler.Pause()
	s.setState(StatePaused)
	s.emit(&PausedEvent{Paused: true})
}

// Resume unfreezes playback and restores the mic. A connection that
// dropped during the pause triggers the reconnect loop now.
func (s *Session) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	muted := s.muted
	needReconnect := s.diedWhilePaused
	s.diedWhilePaused = false
	s.mu.Unlock()

	s.capture.SetMuted(muted)
	s.scheduler.Resume()
	s.emit(&PausedEvent{Paused: false})

	if needReconnect {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reconnect()
		}()
		return
	}
	s.setState(StateConnected)
}

// End terminates the session, drops unplayed audio and returns the
// final transcript. Idempotent.
func (s *Session) End() []TranscriptItem {
	s.endOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
		if conn != nil {
			conn.Close()
		}
		s.scheduler.CancelAll()
		s.scheduler.Close()
		s.finalizePartials()
		s.setState(StateEnded)

		transcript := s.Transcript()
		elapsed := s.now().Sub(s.startedAt)
		if s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
			s.metrics.SessionDuration.Observe(elapsed.Seconds())
		}
		s.emit(&EndedEvent{Transcript: transcript, Elapsed: elapsed})
	})
	s.wg.Wait()
	return s.Transcript()
}

// Transcript returns a copy of the finalized transcript so far.
func (s *Session) Transcript() []TranscriptItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptItem, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// readLoop consumes service frames until the connection dies or the
// session ends.
func (s *Session) readLoop(conn sessionConn) {
	defer s.wg.Done()
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.handleDisconnect(err)
			return
		}
		if msg == nil {
			continue
		}
		if s.handleMessage(msg) {
			return
		}
	}
}

// handleMessage dispatches one service frame. It returns true when the
// read loop should stop.
func (s *Session) handleMessage(msg *protocol.ServerMessage) bool {
	switch {
	case msg.ServerContent != nil:
		s.handleContent(msg.ServerContent)
	case msg.Error != nil:
		ce := classifyServiceError(msg.Error.Code, msg.Error.Message)
		if ce.Retryable() {
			s.handleDisconnect(ce)
		} else {
			s.fail(ce)
		}
		return true
	case msg.GoAway != nil:
		s.logger.Info("service announced shutdown", "time_left_ms", msg.GoAway.TimeLeftMS)
	}
	return false
}

func (s *Session) handleContent(sc *protocol.ServerContent) {
	if sc.Audio != nil {
		s.handleAudio(sc.Audio)
	}
	if sc.InputTranscription != nil {
		s.appendPartial(SpeakerUser, sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil {
		s.appendPartial(SpeakerAgent, sc.OutputTranscription.Text)
	}
	if sc.Interrupted {
		n := s.scheduler.CancelAll()
		if s.metrics != nil {
			s.metrics.ChunksCancelled.Add(float64(n))
		}
		// User speech is always finalized ahead of the agent item, even
		// when the turn boundary arrives in the same frame as the
		// interrupt.
		if sc.TurnComplete {
			s.finalizePartial(SpeakerUser)
		}
		s.finalizePartial(SpeakerAgent)
		s.emit(&InterruptedEvent{CancelledChunks: n})
	}
	if sc.TurnComplete {
		s.finalizePartial(SpeakerUser)
		s.finalizePartial(SpeakerAgent)
	}
}

// handleAudio decodes and validates one audio chunk, then schedules it.
// A malformed chunk is dropped; the session keeps running.
func (s *Session) handleAudio(blob *protocol.AudioBlob) {
	pcm, err := blob.DecodeAudio()
	if err == nil {
		_, err = audio.Decode(pcm, 1)
	}
	if err != nil {
		s.logger.Warn("dropping malformed audio chunk", "error", err)
		if s.metrics != nil {
			s.metrics.ChunksDropped.Inc()
		}
		return
	}
	start := s.scheduler.Schedule(pcm)
	s.logger.Debug("scheduled chunk",
		"start", start,
		"ms", audio.DurationMs(len(pcm), audio.OutputSampleRate, 1),
		"rms", audio.RMSEnergy(pcm))
	if s.metrics != nil {
		s.metrics.ChunksScheduled.Inc()
		s.metrics.AudioBytesOut.Add(float64(len(pcm)))
	}
}

// appendPartial accumulates a transcription fragment for the speaker
// and republishes the running text. Fragments matching the priming
// marker never reach the transcript.
func (s *Session) appendPartial(sp Speaker, text string) {
	if text == "" || strings.TrimSpace(text) == primingMarker {
		return
	}
	s.mu.Lock()
	b := s.partialFor(sp)
	b.WriteString(text)
	running := b.String()
	s.mu.Unlock()
	s.emit(&PartialTranscriptEvent{Speaker: sp, Text: running})
}

// finalizePartial promotes the accumulated fragments for one speaker
// into a transcript item. Empty partials produce nothing.
func (s *Session) finalizePartial(sp Speaker) {
	s.mu.Lock()
	b := s.partialFor(sp)
	text := strings.TrimSpace(b.String())
	b.Reset()
	if text == "" {
		s.mu.Unlock()
		return
	}
	item := newTranscriptItem(sp, text, s.now())
	s.transcript = append(s.transcript, item)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TranscriptItems.Inc()
	}
	s.emit(&TranscriptItemEvent{Item: item})
}

func (s *Session) finalizePartials() {
	s.finalizePartial(SpeakerUser)
	s.finalizePartial(SpeakerAgent)
}

func (s *Session) partialFor(sp Speaker) *strings.Builder {
	if sp == SpeakerUser {
		return &s.userPartial
	}
	return &s.agentPartial
}

// handleDisconnect reacts to a dropped connection. While paused the
// reconnect is deferred; otherwise the backoff loop starts immediately.
func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	s.conn = nil
	if s.paused {
		s.diedWhilePaused = true
		s.mu.Unlock()
		s.logger.Info("connection lost while paused, deferring reconnect", "error", err)
		return
	}
	s.mu.Unlock()

	if !IsRetryable(err) {
		s.fail(err)
		return
	}
	s.logger.Warn("connection lost", "error", err)
	s.reconnect()
}

// reconnect runs the backoff loop until a dial succeeds, the attempts
// are exhausted, or the session ends. On success the scheduler cursor
// resets and the service receives the recent transcript as recovery
// context.
func (s *Session) reconnect() {
	s.setState(StateReconnecting)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		delay, ok := s.policy.Next()
		if !ok {
			if s.metrics != nil {
				s.metrics.ReconnectExhausted.Inc()
			}
			s.fail(&ConnectError{Kind: KindTransport, Message: "reconnect attempts exhausted"})
			return
		}
		s.emit(&ReconnectingEvent{Attempt: s.policy.Attempt(), Delay: delay})
		if s.metrics != nil {
			s.metrics.ReconnectAttempts.Inc()
		}
		if err := s.sleep(s.ctx, delay); err != nil {
			return
		}

		conn, err := s.dial(s.ctx, s.cfg, s.setupMessage(s.recoveryHistory()), s.logger)
		if err != nil {
			if !IsRetryable(err) {
				s.fail(err)
				return
			}
			s.logger.Warn("reconnect attempt failed", "attempt", s.policy.Attempt(), "error", err)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.sessionID = conn.SessionID()
		s.mu.Unlock()

		s.prime(conn)
		s.policy.Begin()
		s.scheduler.Reset()
		s.setState(StateConnected)
		s.emit(&ConnectedEvent{SessionID: conn.SessionID(), Recovered: true})

		s.wg.Add(1)
		go s.readLoop(conn)
		return
	}
}

// fail moves the session into the terminal error state.
func (s *Session) fail(err error) {
	s.logger.Error("session failed", "error", err)
	s.setState(StateErrored)
	s.emit(&ErrorEvent{Code: string(kindOf(err)), Message: err.Error(), Terminal: true})
}

// setupMessage builds the handshake payload, attaching recovery history
// when reconnecting.
func (s *Session) setupMessage(history []protocol.HistoryItem) protocol.SessionSetup {
	return protocol.SessionSetup{
		Role:            s.cfg.Role,
		Seniority:       s.cfg.Seniority,
		Difficulty:      s.cfg.Difficulty,
		Persona:         s.cfg.Persona,
		Mode:            s.cfg.Mode,
		FocusArea:       s.cfg.FocusArea,
		ResumeText:      s.cfg.ResumeText,
		DurationMinutes: int(s.cfg.Duration / time.Minute),
		History:         history,
	}
}

// recoveryHistory gathers the most recent transcript items plus any
// in-flight partials so the service can resume the conversation.
func (s *Session) recoveryHistory() []protocol.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.transcript
	if n := s.cfg.RecoveryWindow; n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	out := make([]protocol.HistoryItem, 0, len(items)+2)
	for _, it := range items {
		out = append(out, protocol.HistoryItem{Speaker: string(it.Speaker), Text: it.Text})
	}
	if t := strings.TrimSpace(s.userPartial.String()); t != "" {
		out = append(out, protocol.HistoryItem{Speaker: string(SpeakerUser), Text: t, Partial: true})
	}
	if t := strings.TrimSpace(s.agentPartial.String()); t != "" {
		out = append(out, protocol.HistoryItem{Speaker: string(SpeakerAgent), Text: t, Partial: true})
	}
	return out
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.emit(&StateChangedEvent{From: prev, To: st})
}

// emit publishes without blocking. A full buffer drops the event,
// except for terminal events, which evict the oldest buffered event so
// the consumer always learns the session is over.
func (s *Session) emit(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		if !isTerminal(ev) {
			s.logger.Warn("event buffer full, dropping", "type", ev.EventType())
			return
		}
		select {
		case stale := <-s.events:
			s.logger.Warn("event buffer full, evicting", "type", stale.EventType())
		default:
		}
	}
}

func isTerminal(ev Event) bool {
	switch e := ev.(type) {
	case *ErrorEvent:
		return e.Terminal
	case *EndedEvent:
		return true
	}
	return false
}

func kindOf(err error) ConnectErrorKind {
	if ce, ok := err.(*ConnectError); ok {
		return ce.Kind
	}
	return KindTransport
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package live

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oratio-ai/oratio/pkg/live/protocol"
)

// fakeConn is an in-memory sessionConn. Frames pushed via push are
// delivered to ReadMessage; dropConn simulates the socket dying.
type fakeConn struct {
	mu      sync.Mutex
	id      string
	frames  chan *protocol.ServerMessage
	sent    [][]byte
	markers []string
	dropped bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, frames: make(chan *protocol.ServerMessage, 32)}
}

func (f *fakeConn) SessionID() string { return f.id }

func (f *fakeConn) SendAudio(pcm []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped {
		return transportErr(errors.New("socket closed"))
	}
	f.sent = append(f.sent, append([]byte(nil), pcm...))
	return nil
}

func (f *fakeConn) SendMarker(marker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, marker)
	return nil
}

func (f *fakeConn) ReadMessage() (*protocol.ServerMessage, error) {
	msg, ok := <-f.frames
	if !ok {
		return nil, transportErr(errors.New("socket closed"))
	}
	return msg, nil
}

func (f *fakeConn) Close() error {
	f.dropConn()
	return nil
}

func (f *fakeConn) push(msg *protocol.ServerMessage) {
	f.frames <- msg
}

func (f *fakeConn) dropConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dropped {
		f.dropped = true
		close(f.frames)
	}
}

func (f *fakeConn) sentFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func inputText(text string) *protocol.ServerMessage {
	return &protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		InputTranscription: &protocol.TranscriptionUpdate{Text: text},
	}}
}

func outputText(text string) *protocol.ServerMessage {
	return &protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		OutputTranscription: &protocol.TranscriptionUpdate{Text: text},
	}}
}

func turnComplete() *protocol.ServerMessage {
	return &protocol.ServerMessage{ServerContent: &protocol.ServerContent{TurnComplete: true}}
}

func interrupted() *protocol.ServerMessage {
	return &protocol.ServerMessage{ServerContent: &protocol.ServerContent{Interrupted: true}}
}

func audioChunk(pcm []byte) *protocol.ServerMessage {
	return &protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		Audio: &protocol.AudioBlob{
			Data:     base64.StdEncoding.EncodeToString(pcm),
			MIMEType: protocol.OutputMIMEType,
		},
	}}
}

func serviceError(code, msg string) *protocol.ServerMessage {
	return &protocol.ServerMessage{Error: &protocol.ServerError{Code: code, Message: msg}}
}

type testHarness struct {
	session *Session
	conns   []*fakeConn
	setups  []protocol.SessionSetup
	mu      sync.Mutex

	dialErrs []error // consumed in order before successful dials
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	cfg := DefaultSessionConfig()
	cfg.Endpoint = "wss://voice.example/live"
	cfg.APIKey = "test-key"
	cfg.ReconnectMaxAttempts = 3

	s, err := NewSession(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	h := &testHarness{session: s}
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	s.dial = func(ctx context.Context, cfg SessionConfig, setup protocol.SessionSetup, logger *slog.Logger) (sessionConn, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.setups = append(h.setups, setup)
		if len(h.dialErrs) > 0 {
			err := h.dialErrs[0]
			h.dialErrs = h.dialErrs[1:]
			return nil, err
		}
		c := newFakeConn("sess-1")
		h.conns = append(h.conns, c)
		return c, nil
	}
	return h
}

func (h *testHarness) conn(i int) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[i]
}

func (h *testHarness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.setups)
}

func (h *testHarness) setup(i int) protocol.SessionSetup {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.setups[i]
}

// waitEvent drains the session event stream until an event of the given
// type arrives.
func waitEvent(t *testing.T, s *Session, typ string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.EventType() == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", typ)
		}
	}
}

func TestStartPrimesSession(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	if got := h.session.State(); got != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", got)
	}
	if got := h.session.SessionID(); got != "sess-1" {
		t.Fatalf("SessionID = %q, want sess-1", got)
	}

	conn := h.conn(0)
	if conn.sentFrames() != 1 {
		t.Fatalf("priming frames sent = %d, want 1", conn.sentFrames())
	}
	if len(conn.markers) != 1 || conn.markers[0] != primingMarker {
		t.Fatalf("markers = %v, want [%s]", conn.markers, primingMarker)
	}
	waitEvent(t, h.session, "connected")
}

func TestTranscriptFragmentsAssemble(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(inputText("Hel"))
	conn.push(inputText("lo"))
	conn.push(turnComplete())

	ev := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	if ev.Item.Speaker != SpeakerUser || ev.Item.Text != "Hello" {
		t.Fatalf("item = %+v, want user/Hello", ev.Item)
	}
	if ev.Item.ID == "" {
		t.Fatal("transcript item has empty ID")
	}
}

func TestUserFinalizedBeforeAgent(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(outputText("The answer is B."))
	conn.push(inputText("Which option scales better?"))
	conn.push(turnComplete())

	first := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	second := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)

	if first.Item.Speaker != SpeakerUser {
		t.Fatalf("first item speaker = %v, want user", first.Item.Speaker)
	}
	if second.Item.Speaker != SpeakerAgent {
		t.Fatalf("second item speaker = %v, want agent", second.Item.Speaker)
	}
}

func TestPrimingMarkerFiltered(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(inputText(primingMarker))
	conn.push(inputText("real speech"))
	conn.push(turnComplete())

	ev := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	if ev.Item.Text != "real speech" {
		t.Fatalf("item text = %q, want filtered marker gone", ev.Item.Text)
	}
}

func TestMalformedAudioChunkDropped(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(audioChunk([]byte{0x01})) // odd byte count, not PCM16
	conn.push(inputText("still here"))
	conn.push(turnComplete())

	ev := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	if ev.Item.Text != "still here" {
		t.Fatalf("item text = %q; session should survive a bad chunk", ev.Item.Text)
	}
	if h.session.scheduler.Pending() != 0 {
		t.Fatalf("bad chunk was scheduled, Pending = %d", h.session.scheduler.Pending())
	}
}

func TestInterruptCancelsScheduledAudio(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	// Two one-second chunks; the second cannot be due before the
	// interrupt lands.
	chunk := make([]byte, 48000)
	conn.push(audioChunk(chunk))
	conn.push(audioChunk(chunk))
	conn.push(outputText("as I was say"))
	conn.push(interrupted())

	item := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	if item.Item.Speaker != SpeakerAgent || item.Item.Text != "as I was say" {
		t.Fatalf("truncated item = %+v, want agent partial finalized", item.Item)
	}

	ev := waitEvent(t, h.session, "playback.interrupted").(*InterruptedEvent)
	if ev.CancelledChunks < 1 {
		t.Fatalf("CancelledChunks = %d, want >= 1", ev.CancelledChunks)
	}
}

func TestInterruptWithTurnCompleteFinalizesUserFirst(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(outputText("the tradeoff is"))
	conn.push(inputText("actually, hold on"))
	conn.push(&protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		Interrupted:  true,
		TurnComplete: true,
	}})

	first := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)
	second := waitEvent(t, h.session, "transcript.item").(*TranscriptItemEvent)

	if first.Item.Speaker != SpeakerUser || first.Item.Text != "actually, hold on" {
		t.Fatalf("first item = %+v, want user partial", first.Item)
	}
	if second.Item.Speaker != SpeakerAgent || second.Item.Text != "the tradeoff is" {
		t.Fatalf("second item = %+v, want truncated agent partial", second.Item)
	}
}

func TestTerminalErrorSurvivesFullEventBuffer(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	// Overflow the buffer with partial fragments nobody consumes.
	conn := h.conn(0)
	for i := 0; i < eventBufferSize+16; i++ {
		conn.push(inputText("x"))
	}
	conn.push(serviceError(protocol.CodeInvalidConfig, "bad setup"))

	deadline := time.Now().Add(2 * time.Second)
	for h.session.State() != StateErrored {
		if time.Now().After(deadline) {
			t.Fatal("session never reached ERRORED")
		}
		time.Sleep(5 * time.Millisecond)
	}

	found := false
	for !found {
		select {
		case ev := <-h.session.Events():
			if e, ok := ev.(*ErrorEvent); ok && e.Terminal {
				found = true
			}
		default:
			t.Fatal("terminal error event was dropped from a full buffer")
		}
	}
}

func TestFatalServiceErrorEndsSession(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	h.conn(0).push(serviceError(protocol.CodeInvalidConfig, "unknown role"))

	ev := waitEvent(t, h.session, "error").(*ErrorEvent)
	if !ev.Terminal || ev.Code != string(KindInvalidConfig) {
		t.Fatalf("error event = %+v, want terminal invalid_config", ev)
	}
	if h.dialCount() != 1 {
		t.Fatalf("dials = %d, fatal error must not reconnect", h.dialCount())
	}
}

func TestReconnectCarriesRecoveryContext(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	conn.push(inputText("tell me about consensus"))
	conn.push(turnComplete())
	waitEvent(t, h.session, "transcript.item")
	conn.push(outputText("Raft elects a lead"))

	// Let the output fragment land before killing the socket.
	waitEvent(t, h.session, "transcript.partial")
	conn.dropConn()

	ev := waitEvent(t, h.session, "connected").(*ConnectedEvent)
	if !ev.Recovered {
		t.Fatal("second connected event not marked recovered")
	}
	if h.dialCount() != 2 {
		t.Fatalf("dials = %d, want 2", h.dialCount())
	}

	setup := h.setup(1)
	if len(setup.History) != 2 {
		t.Fatalf("recovery history = %+v, want finalized item + partial", setup.History)
	}
	if setup.History[0].Text != "tell me about consensus" || setup.History[0].Partial {
		t.Fatalf("history[0] = %+v", setup.History[0])
	}
	if setup.History[1].Text != "Raft elects a lead" || !setup.History[1].Partial {
		t.Fatalf("history[1] = %+v, want in-flight agent partial", setup.History[1])
	}
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	h.mu.Lock()
	h.dialErrs = []error{
		transportErr(errors.New("refused")),
		transportErr(errors.New("refused")),
		transportErr(errors.New("refused")),
	}
	h.mu.Unlock()
	h.conn(0).dropConn()

	ev := waitEvent(t, h.session, "error").(*ErrorEvent)
	if !ev.Terminal {
		t.Fatalf("error event = %+v, want terminal after exhaustion", ev)
	}
	if got := h.dialCount(); got != 4 { // initial + 3 attempts
		t.Fatalf("dials = %d, want 4", got)
	}
}

func TestDropWhilePausedDefersReconnect(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	h.session.Pause()
	waitEvent(t, h.session, "session.paused")
	h.conn(0).dropConn()

	// The read loop notices the drop but must not redial while paused.
	time.Sleep(50 * time.Millisecond)
	if got := h.dialCount(); got != 1 {
		t.Fatalf("dials while paused = %d, want 1", got)
	}

	h.session.Resume()
	ev := waitEvent(t, h.session, "connected").(*ConnectedEvent)
	if !ev.Recovered {
		t.Fatal("post-resume connection not marked recovered")
	}
}

func TestMuteSubstitutesSilenceAtSameCadence(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.session.End()

	conn := h.conn(0)
	base := conn.sentFrames() // priming frame

	samples := make([]float32, h.session.cfg.FrameSize)
	for i := range samples {
		samples[i] = 0.5
	}
	h.session.PushAudio(samples)
	if got := conn.sentFrames(); got != base+1 {
		t.Fatalf("frames after push = %d, want %d", got, base+1)
	}

	h.session.SetMuted(true)
	h.session.PushAudio(samples)
	if got := conn.sentFrames(); got != base+2 {
		t.Fatalf("muted push sent %d frames total, cadence must not change", got)
	}

	// The muted frame is all zeroes.
	conn.mu.Lock()
	last := conn.sent[len(conn.sent)-1]
	conn.mu.Unlock()
	for _, b := range last {
		if b != 0 {
			t.Fatal("muted frame contains live samples")
		}
	}
}

func TestEndReturnsFinalTranscript(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := h.conn(0)
	conn.push(inputText("hello"))
	conn.push(turnComplete())
	conn.push(outputText("hello back"))
	conn.push(turnComplete())
	waitEvent(t, h.session, "transcript.item")
	waitEvent(t, h.session, "transcript.item")

	transcript := h.session.End()
	if len(transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(transcript))
	}
	if transcript[0].Speaker != SpeakerUser || transcript[1].Speaker != SpeakerAgent {
		t.Fatalf("transcript order = %v then %v", transcript[0].Speaker, transcript[1].Speaker)
	}
	if got := h.session.State(); got != StateEnded {
		t.Fatalf("state = %v, want ENDED", got)
	}

	// End is idempotent.
	if again := h.session.End(); len(again) != 2 {
		t.Fatalf("second End transcript length = %d", len(again))
	}
}

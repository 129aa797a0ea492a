package devices

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/oratio-ai/oratio/pkg/audio"
)

// speakerBufferBytes is roughly 100ms at 24kHz mono PCM16: small enough
// to keep barge-in snappy, large enough to avoid glitches.
const speakerBufferBytes = 4800

// Speaker plays PCM16 mono audio at the service output rate. It
// implements the playback sink: Play appends bytes, Flush drops
// everything not yet rendered.
type Speaker struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool
}

// NewSpeaker opens the default output device and blocks until the
// backend is ready.
func NewSpeaker() (*Speaker, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   audio.OutputSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   speakerBufferBytes,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, &HardwareError{Device: "speaker", Err: err}
	}
	<-ready

	s := &Speaker{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, audio.OutputSampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Play appends PCM bytes for output. The player is created lazily on
// the first write so a silent session never touches the device.
func (s *Speaker) Play(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

// Flush discards buffered-but-unplayed audio. Used on barge-in.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
}

// Read implements io.Reader for the oto player, blocking until audio
// is buffered or the speaker is closed.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so the device drains without underruns.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close stops playback and wakes any blocked Read.
func (s *Speaker) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.player != nil {
		s.player.Close()
	}
}

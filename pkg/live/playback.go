package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oratio-ai/oratio/pkg/audio"
)

// Sink receives due PCM16 audio for actual output. Implementations must
// tolerate Flush during Play.
type Sink interface {
	// Play appends PCM bytes to the output device.
	Play(pcm []byte)
	// Flush discards anything the device has buffered but not yet played.
	Flush()
}

type scheduledChunk struct {
	start    time.Duration
	duration time.Duration
	pcm      []byte
}

// Scheduler places decoded audio chunks on a virtual timeline so they
// play back-to-back regardless of network arrival jitter. The cursor
// invariant: every chunk starts at or after the previous chunk's end,
// and never before the clock's current time.
type Scheduler struct {
	mu sync.Mutex

	clock      *playbackClock
	sink       Sink
	queue      []scheduledChunk
	nextStart  time.Duration
	sampleRate int
	channels   int
	tick       time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Sink       Sink
	SampleRate int           // default 24000
	Channels   int           // default 1
	Tick       time.Duration // pump interval, default 20ms
	Logger     *slog.Logger

	// now overrides the wall clock; tests only.
	now func() time.Time
}

// NewScheduler creates a scheduler anchored at the current clock time.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.OutputSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 20 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	clock := newPlaybackClock(cfg.now)
	return &Scheduler{
		clock:      clock,
		sink:       cfg.Sink,
		nextStart:  clock.Now(),
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		tick:       cfg.Tick,
		logger:     cfg.Logger,
	}
}

// Start launches the pump that feeds due chunks to the sink. Safe to
// call once; Close stops it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// Close stops the pump and drops anything still queued.
func (s *Scheduler) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.queue = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Schedule assigns the chunk a start time on the timeline and queues it.
// Returns the assigned start. Chunks are scheduled strictly in arrival
// order; the scheduler never reorders.
func (s *Scheduler) Schedule(pcm []byte) time.Duration {
	dur := time.Duration(audio.DurationMs(len(pcm), s.sampleRate, s.channels)) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextStart
	if now := s.clock.Now(); now > start {
		// The clock ran past the cursor (stall); resynchronize.
		start = now
	}
	s.nextStart = start + dur
	s.queue = append(s.queue, scheduledChunk{start: start, duration: dur, pcm: pcm})
	return start
}

// CancelAll drops every scheduled-but-unplayed chunk and flushes the
// sink. Used for barge-in and session end. Returns how many chunks were
// dropped. The cursor snaps back to clock-now so the next chunk plays
// immediately.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.nextStart = s.clock.Now()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.Flush()
	}
	return n
}

// Reset re-anchors the cursor to clock-now without touching the sink.
// Called when a connection opens.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.nextStart = s.clock.Now()
	s.mu.Unlock()
}

// Pause freezes the playback clock. Queued chunks keep their offsets
// relative to the frozen point; nothing is dropped.
func (s *Scheduler) Pause() {
	s.clock.Pause()
}

// Resume unfreezes the playback clock.
func (s *Scheduler) Resume() {
	s.clock.Resume()
}

// Pending returns the number of chunks awaiting playback.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.onTick()
		}
	}
}

// onTick feeds every chunk whose start time has arrived to the sink.
// While the clock is paused Now() is frozen, so nothing becomes due.
func (s *Scheduler) onTick() {
	now := s.clock.Now()

	s.mu.Lock()
	var due []scheduledChunk
	for len(s.queue) > 0 && s.queue[0].start <= now {
		due = append(due, s.queue[0])
		s.queue = s.queue[1:]
	}
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}
	for _, c := range due {
		sink.Play(c.pcm)
	}
}

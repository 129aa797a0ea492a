package live

import (
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	played  [][]byte
	flushes int
}

func (r *recordingSink) Play(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, pcm)
}

func (r *recordingSink) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func (r *recordingSink) playedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.played)
}

// pcmMillis builds a PCM16 mono buffer of the given duration at 24kHz.
func pcmMillis(ms int) []byte {
	return make([]byte, ms*24000/1000*2)
}

func newTestScheduler(fc *fakeClock, sink Sink) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Sink: sink,
		now:  fc.Now,
	})
}

func TestScheduleBackToBack(t *testing.T) {
	fc := newFakeClock()
	s := newTestScheduler(fc, &recordingSink{})

	first := s.Schedule(pcmMillis(100))
	second := s.Schedule(pcmMillis(40))

	if first != 0 {
		t.Fatalf("first start = %v, want 0", first)
	}
	if second != 100*time.Millisecond {
		t.Fatalf("second start = %v, want 100ms (gapless)", second)
	}
}

func TestScheduleAfterStall(t *testing.T) {
	fc := newFakeClock()
	s := newTestScheduler(fc, &recordingSink{})

	s.Schedule(pcmMillis(100))
	// Network stalls well past the end of the queued audio.
	fc.Advance(time.Second)
	got := s.Schedule(pcmMillis(100))

	if got != time.Second {
		t.Fatalf("start after stall = %v, want 1s (clock-now)", got)
	}
}

func TestPumpPlaysDueChunks(t *testing.T) {
	fc := newFakeClock()
	sink := &recordingSink{}
	s := newTestScheduler(fc, sink)

	s.Schedule(pcmMillis(100))
	s.Schedule(pcmMillis(100))

	s.onTick()
	if got := sink.playedCount(); got != 1 {
		t.Fatalf("played %d chunks at t=0, want 1", got)
	}
	fc.Advance(100 * time.Millisecond)
	s.onTick()
	if got := sink.playedCount(); got != 2 {
		t.Fatalf("played %d chunks at t=100ms, want 2", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
}

func TestPauseFreezesQueue(t *testing.T) {
	fc := newFakeClock()
	sink := &recordingSink{}
	s := newTestScheduler(fc, sink)

	fc.Advance(10 * time.Millisecond)
	s.Schedule(pcmMillis(100)) // due at 10ms
	s.Pause()
	fc.Advance(time.Minute)
	s.onTick()

	if got := sink.playedCount(); got != 0 {
		t.Fatalf("played %d chunks while paused, want 0", got)
	}

	s.Resume()
	s.onTick()
	if got := sink.playedCount(); got != 1 {
		t.Fatalf("played %d chunks after resume, want 1", got)
	}
}

func TestPauseResumeKeepsRelativeOffsets(t *testing.T) {
	fc := newFakeClock()
	s := newTestScheduler(fc, &recordingSink{})

	s.Schedule(pcmMillis(100))
	s.Pause()
	fc.Advance(time.Hour)
	s.Resume()

	// The cursor did not drift during the pause, so the next chunk
	// still lands right after the first.
	if got := s.Schedule(pcmMillis(100)); got != 100*time.Millisecond {
		t.Fatalf("post-resume start = %v, want 100ms", got)
	}
}

func TestCancelAllDropsAndFlushes(t *testing.T) {
	fc := newFakeClock()
	sink := &recordingSink{}
	s := newTestScheduler(fc, sink)

	s.Schedule(pcmMillis(100))
	s.Schedule(pcmMillis(100))
	s.Schedule(pcmMillis(100))

	if n := s.CancelAll(); n != 3 {
		t.Fatalf("CancelAll() = %d, want 3", n)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d after cancel, want 0", s.Pending())
	}
	if sink.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", sink.flushes)
	}

	// Cursor snapped to now; a fresh chunk plays immediately.
	fc.Advance(time.Second)
	if got := s.Schedule(pcmMillis(100)); got != time.Second {
		t.Fatalf("start after cancel = %v, want 1s", got)
	}
}

func TestResetReanchorsCursor(t *testing.T) {
	fc := newFakeClock()
	s := newTestScheduler(fc, &recordingSink{})

	s.Schedule(pcmMillis(500))
	fc.Advance(50 * time.Millisecond)
	s.Reset()

	if got := s.Schedule(pcmMillis(100)); got != 50*time.Millisecond {
		t.Fatalf("start after reset = %v, want 50ms", got)
	}
}

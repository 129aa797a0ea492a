package live

import (
	"sync"
	"time"
)

// playbackClock is a pausable monotonic clock for the playback timeline.
// While paused it reports a frozen time; Resume continues from the frozen
// point, so scheduled offsets relative to the freeze are preserved.
type playbackClock struct {
	mu sync.Mutex

	now func() time.Time

	anchor      time.Time
	paused      bool
	frozenAt    time.Duration
	pausedTotal time.Duration
}

func newPlaybackClock(now func() time.Time) *playbackClock {
	if now == nil {
		now = time.Now
	}
	return &playbackClock{now: now, anchor: now()}
}

// Now returns the elapsed unpaused time since the clock was created.
func (c *playbackClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return c.frozenAt
	}
	return c.now().Sub(c.anchor) - c.pausedTotal
}

// Pause freezes the clock. Idempotent.
func (c *playbackClock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.frozenAt = c.now().Sub(c.anchor) - c.pausedTotal
	c.paused = true
}

// Resume unfreezes the clock, accounting for the paused interval.
// Idempotent.
func (c *playbackClock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.pausedTotal = c.now().Sub(c.anchor) - c.frozenAt
	c.paused = false
}

// Paused reports whether the clock is frozen.
func (c *playbackClock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

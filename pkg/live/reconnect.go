package live

import "time"

// ReconnectPolicy computes exponential backoff delays for reconnection
// attempts. Not safe for concurrent use; the session's goroutine owns it.
type ReconnectPolicy struct {
	base     time.Duration
	cap      time.Duration
	max      int
	attempts int
}

// NewReconnectPolicy builds a policy with the given base delay, delay
// cap, and maximum attempt count. Zero values fall back to 1s, 10s
// and 8 attempts.
func NewReconnectPolicy(base, cap time.Duration, max int) *ReconnectPolicy {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 10 * time.Second
	}
	if max <= 0 {
		max = 8
	}
	return &ReconnectPolicy{base: base, cap: cap, max: max}
}

// Begin resets the attempt counter. Called when a connection is
// established, so a later drop starts backoff from the base delay.
func (p *ReconnectPolicy) Begin() {
	p.attempts = 0
}

// Next returns the delay before the next attempt and whether an attempt
// is still allowed. The delay doubles each call up to the cap.
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	if p.attempts >= p.max {
		return 0, false
	}
	d := p.base << uint(p.attempts)
	if d > p.cap || d <= 0 {
		d = p.cap
	}
	p.attempts++
	return d, true
}

// Attempt returns the number of attempts consumed so far.
func (p *ReconnectPolicy) Attempt() int { return p.attempts }

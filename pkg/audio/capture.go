package audio

import "sync"

// DefaultFrameSize is the number of samples accumulated before a capture
// frame is emitted. At 16 kHz this is 256 ms of audio; the trade is a
// small fixed latency for far fewer network sends than one per hardware
// callback.
const DefaultFrameSize = 4096

// FrameFunc receives each completed capture frame. The slice is reused
// between calls; implementations must not retain it.
type FrameFunc func(samples []float32)

// CaptureBuffer bridges the real-time microphone callback (small,
// irregular sample counts) into fixed-size frames. When muted it keeps
// emitting frames at the same cadence but filled with silence, so the
// remote connection sees a steady heartbeat instead of going idle.
type CaptureBuffer struct {
	mu        sync.Mutex
	frame     []float32
	pos       int
	muted     bool
	onFrame   FrameFunc
	frameSize int
}

// NewCaptureBuffer creates a buffer emitting frames of frameSize samples.
// frameSize <= 0 selects DefaultFrameSize.
func NewCaptureBuffer(frameSize int, onFrame FrameFunc) *CaptureBuffer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &CaptureBuffer{
		frame:     make([]float32, frameSize),
		frameSize: frameSize,
		onFrame:   onFrame,
	}
}

// Push accumulates samples from the hardware callback, firing the frame
// callback each time frameSize samples have been collected. It allocates
// nothing on the steady path.
func (b *CaptureBuffer) Push(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(samples) > 0 {
		n := copy(b.frame[b.pos:], samples)
		b.pos += n
		samples = samples[n:]

		if b.pos < b.frameSize {
			return
		}

		if b.muted {
			for i := range b.frame {
				b.frame[i] = 0
			}
		}
		if b.onFrame != nil {
			b.onFrame(b.frame)
		}
		b.pos = 0
	}
}

// SetMuted switches silence substitution on or off. Muting never stops
// frame emission.
func (b *CaptureBuffer) SetMuted(muted bool) {
	b.mu.Lock()
	b.muted = muted
	b.mu.Unlock()
}

// Muted reports whether silence substitution is active.
func (b *CaptureBuffer) Muted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted
}

// Pending returns how many samples are buffered toward the next frame.
func (b *CaptureBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// Reset discards any partially accumulated frame.
func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	b.pos = 0
	b.mu.Unlock()
}

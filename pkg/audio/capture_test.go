package audio

import "testing"

func TestCaptureBuffer_EmitsFixedFrames(t *testing.T) {
	var frames [][]float32
	b := NewCaptureBuffer(8, func(samples []float32) {
		cp := make([]float32, len(samples))
		copy(cp, samples)
		frames = append(frames, cp)
	})

	// Irregular push sizes, like a hardware callback.
	b.Push(make([]float32, 3))
	b.Push(make([]float32, 3))
	if len(frames) != 0 {
		t.Fatalf("emitted %d frames before threshold", len(frames))
	}
	b.Push(make([]float32, 5))
	if len(frames) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(frames))
	}
	if len(frames[0]) != 8 {
		t.Errorf("frame size = %d, want 8", len(frames[0]))
	}
	if got := b.Pending(); got != 3 {
		t.Errorf("pending = %d, want 3", got)
	}
}

func TestCaptureBuffer_LargePushEmitsMultiple(t *testing.T) {
	var count int
	b := NewCaptureBuffer(4, func([]float32) { count++ })

	b.Push(make([]float32, 13))
	if count != 3 {
		t.Errorf("emitted %d frames, want 3", count)
	}
	if got := b.Pending(); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestCaptureBuffer_MutedEmitsSilenceSameCadence(t *testing.T) {
	var frames [][]float32
	b := NewCaptureBuffer(4, func(samples []float32) {
		cp := make([]float32, len(samples))
		copy(cp, samples)
		frames = append(frames, cp)
	})

	loud := []float32{0.5, 0.5, 0.5, 0.5}
	b.Push(loud)
	b.SetMuted(true)
	b.Push(loud)
	b.SetMuted(false)
	b.Push(loud)

	if len(frames) != 3 {
		t.Fatalf("emitted %d frames, want 3", len(frames))
	}
	for _, s := range frames[0] {
		if s == 0 {
			t.Fatal("unmuted frame contained silence")
		}
	}
	for i, s := range frames[1] {
		if s != 0 {
			t.Fatalf("muted frame sample %d = %f, want 0", i, s)
		}
	}
	if len(frames[1]) != len(frames[0]) {
		t.Error("muted frame length differs from unmuted")
	}
	for _, s := range frames[2] {
		if s == 0 {
			t.Fatal("frame after unmute still silent")
		}
	}
}

func TestCaptureBuffer_Reset(t *testing.T) {
	b := NewCaptureBuffer(8, nil)
	b.Push(make([]float32, 5))
	b.Reset()
	if got := b.Pending(); got != 0 {
		t.Errorf("pending after reset = %d, want 0", got)
	}
}

func TestCaptureBuffer_DefaultFrameSize(t *testing.T) {
	b := NewCaptureBuffer(0, nil)
	if b.frameSize != DefaultFrameSize {
		t.Errorf("frame size = %d, want %d", b.frameSize, DefaultFrameSize)
	}
}

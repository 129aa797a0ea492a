package devices

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// HardwareError wraps an audio backend failure with the device role
// that produced it.
type HardwareError struct {
	Device string // "microphone" or "speaker"
	Err    error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %v", e.Device, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

// Microphone captures mono float32 samples from the default input
// device and hands them to a callback from the backend's audio thread.
// The callback must not block and must not retain the slice.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	buf    []float32
}

// NewMicrophone opens the default capture device at the given sample
// rate. onSamples runs on the audio thread for every period.
func NewMicrophone(sampleRate int, onSamples func(samples []float32)) (*Microphone, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, &HardwareError{Device: "microphone", Err: err}
	}

	m := &Microphone{ctx: ctx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onSamples(m.decodeF32(input, int(frameCount)))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, &HardwareError{Device: "microphone", Err: err}
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return nil, &HardwareError{Device: "microphone", Err: err}
	}
	return m, nil
}

// decodeF32 reinterprets the backend's little-endian float32 bytes.
// The scratch buffer is reused across periods.
func (m *Microphone) decodeF32(input []byte, frames int) []float32 {
	if cap(m.buf) < frames {
		m.buf = make([]float32, frames)
	}
	out := m.buf[:frames]
	for i := 0; i < frames; i++ {
		bits := binary.LittleEndian.Uint32(input[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Close stops capture and releases the backend context.
func (m *Microphone) Close() {
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
	}
}

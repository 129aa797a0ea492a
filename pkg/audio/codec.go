package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// WireSampleRate is the fixed input rate of the remote service.
	WireSampleRate = 16000

	// OutputSampleRate is the rate of audio the remote service sends back.
	OutputSampleRate = 24000
)

// WireMIMEType tags encoded frames with their format.
const WireMIMEType = "audio/pcm;rate=16000"

// Frame is one network-ready block of encoded audio.
type Frame struct {
	Data     []byte
	MIMEType string
}

// DecodeError reports a malformed audio payload from the service.
// Offending chunks are dropped; a DecodeError never ends the session.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "audio decode: " + e.Reason
}

// Encode converts float samples in [-1, 1] at sourceRate into the 16 kHz
// little-endian PCM16 wire format. It is pure: identical input always
// produces identical output. When sourceRate equals the wire rate the
// samples pass through without interpolation.
func Encode(samples []float32, sourceRate int) (Frame, error) {
	if sourceRate <= 0 {
		return Frame{}, fmt.Errorf("encode: invalid source rate %d", sourceRate)
	}
	if len(samples) == 0 {
		return Frame{Data: []byte{}, MIMEType: WireMIMEType}, nil
	}

	if sourceRate != WireSampleRate {
		samples = resampleLinear(samples, sourceRate, WireSampleRate)
	}

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(s*32767)))
	}
	return Frame{Data: data, MIMEType: WireMIMEType}, nil
}

// Decode converts little-endian PCM16 bytes back to float samples in
// [-1, 1]. Channels are interleaved in the output exactly as on the wire.
func Decode(wire []byte, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	if len(wire)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd payload length %d", len(wire))}
	}
	if len(wire) == 0 {
		return []float32{}, nil
	}

	out := make([]float32, len(wire)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(wire[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// SilenceFrame returns n samples of encoded silence at the wire rate.
// Used for mute/pause heartbeats and the connection priming frame.
func SilenceFrame(n int) Frame {
	return Frame{Data: make([]byte, n*2), MIMEType: WireMIMEType}
}

// resampleLinear converts samples from one rate to another with linear
// interpolation. Quality is adequate for 16-bit speech; anything fancier
// belongs in a real DSP library.
func resampleLinear(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	ratio := float64(from) / float64(to)
	n := int(math.Floor(float64(len(in)) / ratio))
	if n <= 0 {
		n = 1
	}
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

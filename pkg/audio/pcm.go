package audio

import "math"

// RMSEnergy computes the root-mean-square energy of 16-bit little-endian
// PCM. Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data,
// between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs / 32768.0
}

// DurationMs returns the playback duration of byteLen bytes of PCM16
// audio at the given rate and channel count, in milliseconds.
func DurationMs(byteLen, sampleRate, channels int) int64 {
	bytesPerSecond := int64(sampleRate * channels * 2)
	if bytesPerSecond <= 0 || byteLen <= 0 {
		return 0
	}
	return (int64(byteLen) * 1000) / bytesPerSecond
}

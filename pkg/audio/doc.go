// Package audio provides the PCM codec and capture buffering used by the
// live session pipeline.
//
// Microphone samples arrive as float32 values in [-1, 1] at whatever rate
// the hardware runs at. Encode resamples them to the 16 kHz mono PCM16
// wire format the remote service expects; Decode converts the service's
// PCM16 output back to floats for playback. CaptureBuffer turns the
// hardware callback cadence (small, irregular sample counts) into
// fixed-size frames suitable for network transmission.
package audio

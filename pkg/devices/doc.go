// Package devices binds the session pipeline to real audio hardware:
// a malgo-backed microphone producing float32 samples and an oto-backed
// speaker consuming PCM16 at the service output rate.
package devices

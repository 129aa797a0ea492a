package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/oratio-ai/oratio/pkg/audio"
)

// MaxResumeTextLen caps the resume text carried in the session setup.
// Longer resumes are truncated, never rejected.
const MaxResumeTextLen = 8192

// SessionConfig holds everything needed to open an interview session.
type SessionConfig struct {
	// Endpoint is the websocket URL of the remote conversational service.
	Endpoint string `json:"endpoint"`

	// APIKey authenticates the connection. Read from the environment by
	// the caller; never logged.
	APIKey string `json:"-"`

	// Interview shape.
	Role       string `json:"role"`
	Seniority  string `json:"seniority,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Persona    string `json:"persona,omitempty"`
	Mode       string `json:"mode,omitempty"`
	FocusArea  string `json:"focus_area,omitempty"`
	ResumeText string `json:"resume_text,omitempty"`

	// Duration is the interview time budget.
	Duration time.Duration `json:"duration"`

	// CaptureRate is the microphone sample rate in Hz. The codec
	// resamples to the 16 kHz wire rate.
	CaptureRate int `json:"capture_rate"`

	// FrameSize is the capture frame threshold in samples.
	FrameSize int `json:"frame_size"`

	// RecoveryWindow is how many recent transcript items are replayed to
	// the service on reconnect. Tunable, not correctness-critical.
	RecoveryWindow int `json:"recovery_window"`

	// Reconnect backoff shape.
	ReconnectBase        time.Duration `json:"reconnect_base"`
	ReconnectCap         time.Duration `json:"reconnect_cap"`
	ReconnectMaxAttempts int           `json:"reconnect_max_attempts"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Role:                 "Software Engineer",
		Difficulty:           "medium",
		Duration:             15 * time.Minute,
		CaptureRate:          48000,
		FrameSize:            audio.DefaultFrameSize,
		RecoveryWindow:       50,
		ReconnectBase:        time.Second,
		ReconnectCap:         10 * time.Second,
		ReconnectMaxAttempts: 8,
	}
}

// Validate checks the configuration and normalizes soft limits.
func (c *SessionConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	if strings.TrimSpace(c.Role) == "" {
		return fmt.Errorf("config: role is required")
	}
	if c.CaptureRate <= 0 {
		return fmt.Errorf("config: capture rate must be > 0, got %d", c.CaptureRate)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("config: duration must be > 0")
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = 50
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectCap < c.ReconnectBase {
		c.ReconnectCap = 10 * time.Second
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 8
	}
	if len(c.ResumeText) > MaxResumeTextLen {
		c.ResumeText = c.ResumeText[:MaxResumeTextLen]
	}
	return nil
}

// Package protocol defines the JSON frames exchanged with the remote
// conversational service over the persistent websocket stream.
//
// Client to service: a setup frame opening the session, then a stream of
// base64-encoded PCM16 audio frames. Service to client: a setup ack,
// then audio chunks interleaved with transcription fragments and turn
// boundaries.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Audio formats on the wire. Input is what the client sends, output is
// what the service returns.
const (
	InputMIMEType  = "audio/pcm;rate=16000"
	OutputMIMEType = "audio/pcm;rate=24000"
)

// Error codes the service may attach to an Error frame. permission_denied
// and invalid_config are fatal; everything else is treated as transport
// failure and retried.
const (
	CodePermissionDenied = "permission_denied"
	CodeInvalidConfig    = "invalid_config"
)

// SessionSetup is the configuration payload of the setup frame.
type SessionSetup struct {
	Role       string `json:"role"`
	Seniority  string `json:"seniority,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Persona    string `json:"persona,omitempty"`
	Mode       string `json:"mode,omitempty"`
	FocusArea  string `json:"focusArea,omitempty"`
	ResumeText string `json:"resumeText,omitempty"`

	// DurationMinutes is the interview time budget communicated to the
	// agent; the service paces questions against it.
	DurationMinutes int `json:"durationMinutes,omitempty"`

	// History carries a recent transcript excerpt on reconnect so the
	// agent resumes without repeating itself. Empty on a fresh session.
	History []HistoryItem `json:"history,omitempty"`
}

// HistoryItem is one prior utterance supplied as recovery context.
type HistoryItem struct {
	Speaker string `json:"speaker"` // "user" or "agent"
	Text    string `json:"text"`
	Partial bool   `json:"partial,omitempty"`
}

// ClientMessage is the envelope for all client-to-service frames.
// Exactly one field is set per frame.
type ClientMessage struct {
	Setup         *SessionSetup  `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
}

// RealtimeInput carries streaming media or a synthetic activity marker.
type RealtimeInput struct {
	Audio *AudioBlob `json:"audio,omitempty"`

	// ActivityMarker is a synthetic text signal (session priming). The
	// service echoes it through input transcription; clients filter it.
	ActivityMarker string `json:"activityMarker,omitempty"`
}

// AudioBlob is a base64-encoded PCM payload plus format tag.
type AudioBlob struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// NewAudioMessage wraps raw PCM16 bytes into a realtimeInput frame.
func NewAudioMessage(pcm []byte, mimeType string) ClientMessage {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = InputMIMEType
	}
	return ClientMessage{
		RealtimeInput: &RealtimeInput{
			Audio: &AudioBlob{
				Data:     base64.StdEncoding.EncodeToString(pcm),
				MIMEType: mimeType,
			},
		},
	}
}

// ServerMessage is the envelope for all service-to-client frames.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	Error         *ServerError   `json:"error,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// SetupComplete acknowledges the setup frame.
type SetupComplete struct {
	SessionID string `json:"sessionId,omitempty"`
}

// ServerContent carries agent audio, transcription fragments, and turn
// boundaries. Any combination of fields may be present in one frame.
type ServerContent struct {
	Audio               *AudioBlob           `json:"audio,omitempty"`
	InputTranscription  *TranscriptionUpdate `json:"inputTranscription,omitempty"`
	OutputTranscription *TranscriptionUpdate `json:"outputTranscription,omitempty"`
	TurnComplete        bool                 `json:"turnComplete,omitempty"`

	// Interrupted signals the service detected barge-in: the client must
	// cancel all scheduled-but-unplayed agent audio.
	Interrupted bool `json:"interrupted,omitempty"`
}

// TranscriptionUpdate is one incremental transcript fragment.
type TranscriptionUpdate struct {
	Text string `json:"text"`
}

// ServerError is a structured service-side failure.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GoAway warns the connection is about to be dropped by the service.
type GoAway struct {
	TimeLeftMS int64 `json:"timeLeftMs,omitempty"`
}

// DecodeAudio returns the raw PCM bytes of an audio blob.
func (b *AudioBlob) DecodeAudio() ([]byte, error) {
	if b == nil || strings.TrimSpace(b.Data) == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("audio blob: %w", err)
	}
	return data, nil
}

// ParseServerMessage unmarshals one service frame.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("server frame: %w", err)
	}
	return msg, nil
}

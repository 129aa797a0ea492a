package live

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptItem is one complete attributed utterance. Immutable once
// created.
type TranscriptItem struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func newTranscriptItem(speaker Speaker, text string, at time.Time) TranscriptItem {
	return TranscriptItem{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		CreatedAt: at,
	}
}

// Event is the interface for all session events delivered to the UI layer.
type Event interface {
	EventType() string
}

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ConnectedEvent is emitted when a connection (initial or recovered)
// is established.
type ConnectedEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Recovered bool   `json:"recovered,omitempty"`
}

func (e *ConnectedEvent) EventType() string { return "connected" }

// PartialTranscriptEvent carries the in-progress text for one speaker.
type PartialTranscriptEvent struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

func (e *PartialTranscriptEvent) EventType() string { return "transcript.partial" }

// TranscriptItemEvent is emitted when a turn completes and an item is
// promoted.
type TranscriptItemEvent struct {
	Item TranscriptItem `json:"item"`
}

func (e *TranscriptItemEvent) EventType() string { return "transcript.item" }

// InterruptedEvent is emitted on barge-in, after scheduled playback has
// been cancelled.
type InterruptedEvent struct {
	CancelledChunks int `json:"cancelled_chunks"`
}

func (e *InterruptedEvent) EventType() string { return "playback.interrupted" }

// MutedEvent reflects the user mute toggle.
type MutedEvent struct {
	Muted bool `json:"muted"`
}

func (e *MutedEvent) EventType() string { return "capture.muted" }

// PausedEvent reflects pause/resume.
type PausedEvent struct {
	Paused bool `json:"paused"`
}

func (e *PausedEvent) EventType() string { return "session.paused" }

// ReconnectingEvent is emitted before each backoff wait.
type ReconnectingEvent struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

func (e *ReconnectingEvent) EventType() string { return "session.reconnecting" }

// ErrorEvent surfaces a user-visible failure. Terminal errors also move
// the session to StateErrored.
type ErrorEvent struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Terminal bool   `json:"terminal,omitempty"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// EndedEvent is emitted exactly once when the session ends, carrying the
// final transcript for the report collaborator.
type EndedEvent struct {
	Transcript []TranscriptItem `json:"transcript"`
	Elapsed    time.Duration    `json:"elapsed"`
}

func (e *EndedEvent) EventType() string { return "session.ended" }

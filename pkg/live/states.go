package live

// State represents the lifecycle state of a Session.
type State int

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateConnecting is while the first connection is being established.
	StateConnecting
	// StateConnected is the normal conversing state.
	StateConnected
	// StatePaused is the user-initiated pause: playback clock frozen,
	// capture sending silence heartbeats.
	StatePaused
	// StateReconnecting is while the reconnect policy is re-establishing
	// a dropped connection.
	StateReconnecting
	// StateErrored is terminal unless the user starts a new session.
	StateErrored
	// StateEnded is terminal, user-initiated.
	StateEnded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StatePaused:
		return "PAUSED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateErrored:
		return "ERRORED"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

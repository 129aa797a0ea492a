package live

import (
	"errors"
	"fmt"
)

// ConnectErrorKind classifies connection failures by whether retrying
// can help.
type ConnectErrorKind string

const (
	// KindTransport covers network-level failures and abnormal socket
	// closure. Retryable.
	KindTransport ConnectErrorKind = "transport"
	// KindPermissionDenied means the credential was rejected. Fatal.
	KindPermissionDenied ConnectErrorKind = "permission_denied"
	// KindInvalidConfig means the service refused the session setup.
	// Fatal; retrying with the same parameters cannot succeed.
	KindInvalidConfig ConnectErrorKind = "invalid_config"
)

// ConnectError describes a failure to establish or keep a session
// connection.
type ConnectError struct {
	Kind    ConnectErrorKind
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("connect: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("connect: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("connect: %s", e.Kind)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Retryable reports whether a reconnect attempt could plausibly succeed.
func (e *ConnectError) Retryable() bool { return e.Kind == KindTransport }

func transportErr(err error) *ConnectError {
	return &ConnectError{Kind: KindTransport, Err: err}
}

// classifyServiceError maps a service error frame to a ConnectError.
func classifyServiceError(code, message string) *ConnectError {
	switch code {
	case "permission_denied":
		return &ConnectError{Kind: KindPermissionDenied, Message: message}
	case "invalid_config":
		return &ConnectError{Kind: KindInvalidConfig, Message: message}
	default:
		return &ConnectError{Kind: KindTransport, Message: message}
	}
}

// IsRetryable reports whether err allows another connection attempt.
// Unclassified errors are treated as transport failures.
func IsRetryable(err error) bool {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return true
}

package live

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/oratio-ai/oratio/pkg/live/protocol"
)

// NewScriptedSession wires a session to an in-memory connection so
// tests outside the package can drive the full event path. The returned
// push function injects service frames into the read loop.
func NewScriptedSession(cfg SessionConfig) (*Session, func(msg *protocol.ServerMessage), error) {
	s, err := NewSession(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		return nil, nil, err
	}
	conn := newFakeConn("scripted")
	s.dial = func(ctx context.Context, cfg SessionConfig, setup protocol.SessionSetup, logger *slog.Logger) (sessionConn, error) {
		return conn, nil
	}
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s, conn.push, nil
}

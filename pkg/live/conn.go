package live

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oratio-ai/oratio/pkg/live/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// SessionConnection is a single established websocket session with the
// voice service. It is created by dialSession after the setup handshake
// has completed. Writes are serialized; reads belong to one goroutine.
type SessionConnection struct {
	ws        *websocket.Conn
	sessionID string
	logger    *slog.Logger

	writeMu sync.Mutex
}

// dialFunc lets tests substitute the transport.
type dialFunc func(ctx context.Context, cfg SessionConfig, setup protocol.SessionSetup, logger *slog.Logger) (sessionConn, error)

// sessionConn is the surface the session loop needs from a connection.
type sessionConn interface {
	SessionID() string
	SendAudio(pcm []byte, mimeType string) error
	SendMarker(marker string) error
	ReadMessage() (*protocol.ServerMessage, error)
	Close() error
}

// dialSession opens the websocket, sends the session setup and waits
// for acknowledgement. The returned connection is ready for realtime
// traffic.
func dialSession(ctx context.Context, cfg SessionConfig, setup protocol.SessionSetup, logger *slog.Logger) (sessionConn, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, &ConnectError{Kind: KindInvalidConfig, Message: fmt.Sprintf("bad endpoint: %v", err)}
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &ConnectError{Kind: KindPermissionDenied, Message: resp.Status, Err: err}
		}
		return nil, transportErr(err)
	}

	conn := &SessionConnection{ws: ws, logger: logger}
	if err := conn.handshake(setup); err != nil {
		ws.Close()
		return nil, err
	}
	return conn, nil
}

// handshake sends the setup message and blocks until the service
// acknowledges or rejects it.
func (c *SessionConnection) handshake(setup protocol.SessionSetup) error {
	msg := protocol.ClientMessage{Setup: &setup}
	if err := c.writeJSON(msg); err != nil {
		return transportErr(err)
	}

	c.ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return transportErr(err)
		}
		srv, err := protocol.ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("unparseable frame during handshake", "error", err)
			continue
		}
		switch {
		case srv.SetupComplete != nil:
			c.sessionID = srv.SetupComplete.SessionID
			return nil
		case srv.Error != nil:
			return classifyServiceError(srv.Error.Code, srv.Error.Message)
		default:
			// Service may interleave keepalives before the ack.
			continue
		}
	}
}

// SessionID returns the identifier the service assigned at setup.
func (c *SessionConnection) SessionID() string { return c.sessionID }

// SendAudio transmits one encoded audio frame.
func (c *SessionConnection) SendAudio(pcm []byte, mimeType string) error {
	msg := protocol.NewAudioMessage(pcm, mimeType)
	return c.writeJSON(msg)
}

// SendMarker transmits an activity marker, such as the session-start
// signal that accompanies the priming frame.
func (c *SessionConnection) SendMarker(marker string) error {
	msg := protocol.ClientMessage{
		RealtimeInput: &protocol.RealtimeInput{ActivityMarker: marker},
	}
	return c.writeJSON(msg)
}

// ReadMessage blocks for the next parseable service frame. Malformed
// frames are logged and skipped; only socket failure returns an error.
// Callers run this from a single goroutine.
func (c *SessionConnection) ReadMessage() (*protocol.ServerMessage, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, transportErr(err)
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			c.logger.Warn("skipping malformed frame", "error", err)
			continue
		}
		return &msg, nil
	}
}

// Close sends a close frame and tears down the socket.
func (c *SessionConnection) Close() error {
	c.writeMu.Lock()
	deadline := time.Now().Add(writeTimeout)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *SessionConnection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

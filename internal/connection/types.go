package connection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrConnection      = errors.New("connection error")
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrBackoff         = errors.New("waiting for retry backoff")
)

// Status is the driver-reported state of a connection.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusNotConnected Status = "not_connected"
)

// Alive reports whether the connection is usable.
func (s Status) Alive() bool { return s == StatusConnected }

// Conn is a live connection handle.
type Conn interface {
	// ID is unique per opened connection, so a reopened team gets a new one.
	ID() string

	// Status returns the current connection state.
	Status() Status

	// Close shuts the connection down. Calling it twice is a no-op.
	Close() error
}

// Driver opens live connections for bot tokens.
type Driver interface {
	// Open establishes a connection for tok. Failures wrap ErrConnection.
	Open(ctx context.Context, tok string) (Conn, error)
}

// OpenError reports a failed Open.
type OpenError struct {
	TeamID string
	Stage  string // "rtm.connect", "dial", "backoff"
	Err    error
}

func (e *OpenError) Error() string {
	if e.TeamID != "" {
		return fmt.Sprintf("open %s (%s): %v", e.TeamID, e.Stage, e.Err)
	}
	return fmt.Sprintf("open (%s): %v", e.Stage, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Is makes every OpenError match ErrConnection.
func (e *OpenError) Is(target error) bool { return target == ErrConnection }

// RTMEvent is the envelope of every RTM message; only Type is inspected.
type RTMEvent struct {
	Type    string `json:"type"`
	ReplyTo int64  `json:"reply_to,omitempty"`
}

// PingMessage is the client keepalive RTM expects.
type PingMessage struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL              string        // wss:// URL returned by rtm.connect
	UserAgent        string        // Sent on the handshake
	PingInterval     time.Duration // How often to send a keepalive ping
	PingTimeout      time.Duration // Max time without any inbound frame before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // Dial/handshake limit
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// SupervisorConfig configures retry pacing for failed opens.
type SupervisorConfig struct {
	ReconnectBaseWait time.Duration // Zero disables backoff
	ReconnectMaxWait  time.Duration
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

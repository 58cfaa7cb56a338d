package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents a single RTM websocket connection.
type Client interface {
	Conn

	// Connect establishes the websocket connection.
	Connect(ctx context.Context) error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	id     string
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex
	pingID  atomic.Int64

	// State
	mu         sync.RWMutex
	status     Status
	lastSeenAt time.Time
	closed     bool
}

// NewClient creates a new websocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultClientConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaults.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	id := uuid.NewString()
	return &client{
		id:     id,
		cfg:    cfg,
		logger: logger.With("conn_id", id),
		done:   make(chan struct{}),
		status: StatusNotConnected,
	}
}

// ID returns the handle id.
func (c *client) ID() string {
	return c.id
}

// Connect establishes the websocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.setStatus(StatusError)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.status = StatusConnected
	c.lastSeenAt = time.Now()
	c.mu.Unlock()

	// Server pings count as liveness; reply with pong.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(data string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("websocket connected")

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.status != StatusError {
		c.status = StatusDisconnected
	}
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if c.status != StatusConnected || c.conn == nil {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Status returns the current connection state.
func (c *client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	return c.Status() == StatusConnected
}

func (c *client) setStatus(s Status) {
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("connection status changed", "from", prev, "to", s)
	}
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

func (c *client) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readLoop drains inbound frames, tracking liveness and RTM control events.
// Event payloads are not processed.
func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			if c.isDone() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("websocket closed by server", "error", err)
				c.setStatus(StatusDisconnected)
			} else {
				c.logger.Warn("websocket read failed", "error", err)
				c.setStatus(StatusError)
			}
			return
		}

		c.touch()

		var ev RTMEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "hello":
			c.logger.Debug("rtm hello received")
		case "goodbye":
			// Server is about to drop us; report it now so the next pass reopens.
			c.logger.Info("rtm goodbye received")
			c.setStatus(StatusDisconnected)
		case "error":
			c.logger.Warn("rtm error event", "payload", string(data))
		}
	}
}

// heartbeatLoop sends RTM pings and detects stale connections.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}

			ping, _ := json.Marshal(PingMessage{ID: c.pingID.Add(1), Type: "ping"})
			if err := c.Send(ping); err != nil && !errors.Is(err, ErrNotConnected) {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastSeen := c.lastSeenAt
			c.mu.RUnlock()

			if time.Since(lastSeen) > c.cfg.PingTimeout {
				c.logger.Warn("no inbound traffic, connection stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.PingTimeout,
				)
				c.setStatus(StatusError)
				c.conn.Close()
				return
			}
		}
	}
}

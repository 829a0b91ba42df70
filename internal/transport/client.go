// Package transport implements the connection layer: one gorilla/websocket
// connection per peer, framed as JSON text messages, with heartbeat,
// per-connection rate limiting, and a bounded outbound queue.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/protocol"
	"github.com/quizrelay/relay/internal/ratelimit"
)

// Role identifies which side of the two-tier session model a Client has
// bound to. A fresh connection has RoleNone until create_room/join/
// reconnect_host succeeds.
type Role string

const (
	RoleNone   Role = ""
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

const (
	// MaxFrameBytes is the wire protocol's MAX_FRAME_BYTES constant.
	MaxFrameBytes = 65536
	// sendBufferSize bounds the outbound queue per connection.
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

// Client wraps one WebSocket connection plus the domain identity bound to
// it by the dispatcher (room code, session ID, role), keeping connection
// and identity on a single struct rather than splitting them across
// packages.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string // opaque per-connection ID, used as the rate-limit key

	logger *zap.Logger

	frameLimiter *ratelimit.FrameLimiter

	mu       sync.RWMutex
	alive    bool
	isClosed bool

	// Binding is set once a create_room/join/reconnect_host succeeds.
	RoomCode  string
	SessionID string
	Role      Role

	// HostedRoom marks that this channel already hosts a room this session,
	// whether it created, reconnected to or restored it (create_room's "at
	// most one room per host channel" precondition).
	HostedRoom bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(conn *websocket.Conn, id string) *Client {
	conn.SetReadLimit(MaxFrameBytes)
	return &Client{
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		id:           id,
		logger:       logging.GetLogger().With(zap.String("conn_id", id)),
		frameLimiter: ratelimit.NewFrameLimiter(20, 60),
		alive:        true,
		closed:       make(chan struct{}),
	}
}

// ID returns the connection's opaque identifier.
func (c *Client) ID() string { return c.id }

// MarkAlive flips the heartbeat liveness flag on, called from the pong
// handler.
func (c *Client) MarkAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// MarkNotAlive flips the heartbeat liveness flag off; called by the
// lifecycle sweep immediately before sending a ping.
func (c *Client) MarkNotAlive() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

// IsAlive reports the current heartbeat liveness flag.
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// Ping writes a low-level WebSocket ping control frame. Per gorilla's
// concurrency contract, WriteControl may be called concurrently with the
// data-frame writes WritePump performs.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Send enqueues raw for delivery. A full queue means a slow consumer; per
// the relay's resource model, the channel is closed rather than allowed to
// back-pressure the room lock holder.
func (c *Client) Send(raw []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.isClosed {
		return
	}

	select {
	case c.send <- raw:
	default:
		logging.Warn(context.Background(), "outbound queue full, closing slow channel", zap.String("conn_id", c.id))
		go c.Close()
	}
}

// Close shuts the connection down exactly once. The channel closes and the
// underlying write-lock acquisition serialize against any in-flight Send,
// so no send can race a close of c.send.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		close(c.closed)
		close(c.send)
		c.mu.Unlock()

		_ = c.conn.Close()
	})
}

// Done reports a channel that closes once the client has been shut down.
func (c *Client) Done() <-chan struct{} { return c.closed }

// ReadPump reads frames until the connection closes, applying the
// per-connection frame-rate budget before handing each frame to dispatch.
func (c *Client) ReadPump(dispatch func(*Client, []byte)) {
	defer c.Close()

	c.conn.SetPongHandler(func(string) error {
		c.MarkAlive()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		switch c.frameLimiter.Admit() {
		case ratelimit.VerdictClose:
			metrics.RateLimitExceeded.WithLabelValues("frame", "close").Inc()
			return
		case ratelimit.VerdictWarn:
			metrics.RateLimitExceeded.WithLabelValues("frame", "warn").Inc()
			c.sendRateLimitError()
			continue
		case ratelimit.VerdictDrop:
			continue
		}

		dispatch(c, data)
	}
}

func (c *Client) sendRateLimitError() {
	raw, err := json.Marshal(protocol.ErrorOut{Type: protocol.TypeError, Message: protocol.MsgRateLimited})
	if err != nil {
		return
	}
	c.Send(raw)
}

// WritePump drains the outbound queue onto the wire until the queue is
// closed.
func (c *Client) WritePump() {
	for raw := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

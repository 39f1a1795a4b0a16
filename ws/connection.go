package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"tank-gateway/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

type Role string

const (
	RolePending  Role = "pending"
	RoleDevice   Role = "device"
	RoleObserver Role = "observer"
)

// Connection is one live stream. Only the Manager and the pumps touch the
// socket; everyone else goes through Send.
type Connection struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	role       Role
	deviceID   string
	deviceType string

	lastActivity atomic.Int64
	closeOnce    sync.Once
	closed       atomic.Bool
}

// NewConnection wraps an upgraded socket. conn may be nil for connections
// that are only exercised through their send queue.
func NewConnection(conn *websocket.Conn) *Connection {
	c := &Connection{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		role: RolePending,
	}
	c.Touch(time.Now())
	return c
}

func (c *Connection) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

func (c *Connection) DeviceType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceType
}

func (c *Connection) setIdentity(role Role, deviceID, deviceType string) (previous Role) {
	c.mu.Lock()
	previous = c.role
	c.role, c.deviceID, c.deviceType = role, deviceID, deviceType
	c.mu.Unlock()
	return previous
}

func (c *Connection) Touch(now time.Time) {
	c.lastActivity.Store(now.UnixNano())
}

func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Send encodes m and queues it without blocking.
func (c *Connection) Send(m protocol.Outbound) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if !c.SafeSend(data) {
		return ErrSendDropped
	}
	return nil
}

// SafeSend queues data for the write pump. It returns false when the
// connection is closed or its buffer is full; it never blocks.
func (c *Connection) SafeSend(data []byte) (sent bool) {
	// Close may run between the closed check and the send.
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// ReadPump delivers text frames to handle in arrival order until the peer
// goes away. Any frame, pong included, extends the read deadline.
func (c *Connection) ReadPump(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.Touch(time.Now())
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		c.Touch(time.Now())
		handle(data)
	}
}

// WritePump drains the send queue and keeps the peer alive with pings.
// It returns when the queue is closed or a write fails.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

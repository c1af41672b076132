package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket with a single writer goroutine so concurrent
// fan-out never interleaves frames on the wire. Identity is set once after
// the handshake; observers carry a role but no student ID.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	studentID    string
	role         string
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	mu           sync.RWMutex
}

// NewConnection wraps an upgraded WebSocket. bufferSize bounds how far a slow
// reader can fall behind before writes to it start failing.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the sole writer on the wire. writeCh is never closed: a
// concurrent WriteJSON may still be selecting on the send case after cancel,
// and a send on a closed channel would panic the whole hub. The channel is
// simply abandoned on exit and collected with the connection.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a message for the writer goroutine. Fails fast once the
// connection is closed; blocks at most writeTimeout when the buffer is full.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the connection down exactly once. Queued messages still in
// writeCh are dropped, never flushed.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity records who this connection belongs to. Observers pass an
// empty student ID.
func (c *Connection) SetIdentity(studentID, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.studentID = studentID
	c.role = role
}

func (c *Connection) StudentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.studentID
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

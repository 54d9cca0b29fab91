package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ErrConnClosed is returned when writing to a connection that has gone away.
var ErrConnClosed = errors.New("connection closed")

// Conn is the handle for one controller connection.
// Writes are serialized; reads happen only on the connection's read loop.
type Conn struct {
	ID     string
	Remote string

	ws           *websocket.Conn
	writeTimeout time.Duration
	limiter      *rate.Limiter

	mu     sync.Mutex
	closed atomic.Bool
}

func newConn(wc *websocket.Conn, remote string, writeTimeout time.Duration, limiter *rate.Limiter) *Conn {
	return &Conn{
		ID:           uuid.NewString(),
		Remote:       remote,
		ws:           wc,
		writeTimeout: writeTimeout,
		limiter:      limiter,
	}
}

// Send writes one text frame.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() || c.ws == nil {
		return ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close sends a close frame and releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) || c.ws == nil {
		return nil
	}
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

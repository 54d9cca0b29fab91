package ws

import (
	"sync"
	"weak"

	"ncstreamer/internal/model"
)

// RequestCache maps request keys to the connection that issued the request.
//
// Entries are created on CheckIn and removed on CheckOut. An entry whose
// response never arrives stays in the table until the process exits; the
// table is bounded by the number of abandoned requests, which is small in
// practice. Connections are held weakly so a cached key never keeps a
// closed connection alive.
type RequestCache struct {
	mu      sync.Mutex
	entries map[model.RequestKey]weak.Pointer[Conn]
	lastKey model.RequestKey
}

// NewRequestCache returns an empty cache. The first key issued is 1.
func NewRequestCache() *RequestCache {
	return &RequestCache{
		entries: make(map[model.RequestKey]weak.Pointer[Conn]),
	}
}

// CheckIn stores conn under a fresh key and returns the key.
func (c *RequestCache) CheckIn(conn *Conn) model.RequestKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Wraps after 2^31-1 keys without checking for live collisions.
	c.lastKey++
	c.entries[c.lastKey] = weak.Make(conn)
	return c.lastKey
}

// CheckOut removes the entry for key and returns its connection.
// It returns false if the key is unknown, was already checked out, or the
// connection has since been released.
func (c *RequestCache) CheckOut(key model.RequestKey) (*Conn, bool) {
	c.mu.Lock()
	ptr, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	conn := ptr.Value()
	if conn == nil {
		return nil, false
	}
	return conn, true
}

// Len returns the number of requests still waiting for a response.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

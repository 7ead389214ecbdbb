// Package facade is the broadcast coordinator: it subscribes to the change
// streams and fans each change out to the connections of its game session.
package facade

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrConnClosed is returned by Push after Close.
	ErrConnClosed = errors.New("connection closed")
	// ErrBufferFull is returned by Push when the connection is not draining.
	ErrBufferFull = errors.New("connection buffer full")
)

// Conn is one downstream client of a game session. Fanned-out changes are
// queued on a bounded channel drained by the transport's writer goroutine.
type Conn struct {
	id             string
	gameSessionURN string
	uid            string
	events         chan []byte
	mu             sync.Mutex
	closed         bool
}

// NewConn creates an open Conn for uid on gameSessionURN.
//
// Postcondition: bufferSize <= 0 selects a 64-message queue.
func NewConn(gameSessionURN, uid string, bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Conn{
		id:             uuid.NewString(),
		gameSessionURN: gameSessionURN,
		uid:            uid,
		events:         make(chan []byte, bufferSize),
	}
}

// ID returns the connection's process-local id.
func (c *Conn) ID() string { return c.id }

// GameSessionURN returns the game session the connection listens to.
func (c *Conn) GameSessionURN() string { return c.gameSessionURN }

// UID returns the connected actor's identity.
func (c *Conn) UID() string { return c.uid }

// Push enqueues data without blocking.
//
// Postcondition: Returns ErrConnClosed after Close, ErrBufferFull when the queue is full.
func (c *Conn) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.events <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Events returns the queue. It is closed by Close.
func (c *Conn) Events() <-chan []byte {
	return c.events
}

// Close closes the queue. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Package testutil provides deterministic doubles for the sync transport.
package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/discroundup/roundup/internal/ingest"
)

// ErrConnClosed is returned by a ScriptedConn after Close.
var ErrConnClosed = errors.New("scripted connection closed")

// ScriptedConn is an in-memory ingest.Conn.
//
// Frames queued with Push are returned by ReadMessage in order. End makes
// the peer hang up once the queued frames are drained. Every written frame
// is recorded and may be inspected with Sent.
//
// Thread-safety: ScriptedConn is safe for concurrent use via internal mutex.
type ScriptedConn struct {
	inbox  chan string
	closed chan struct{}

	mu        sync.Mutex
	sent      []string
	ended     bool
	endErr    error
	writeErr  error
	onWrite   func(text string)
	closeOnce sync.Once
}

// NewScriptedConn creates a connection with room for buffer queued frames.
func NewScriptedConn(buffer int) *ScriptedConn {
	if buffer < 1 {
		buffer = 64
	}
	return &ScriptedConn{
		inbox:  make(chan string, buffer),
		closed: make(chan struct{}),
	}
}

// Push queues frames for ReadMessage. Frames pushed after End are dropped.
func (c *ScriptedConn) Push(frames ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	for _, f := range frames {
		c.inbox <- f
	}
}

// End hangs up after the queued frames. A nil err is a clean close
// (ReadMessage returns io.EOF).
func (c *ScriptedConn) End(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	if err == nil {
		err = io.EOF
	}
	c.ended = true
	c.endErr = err
	close(c.inbox)
}

// FailWrites makes every subsequent WriteMessage return err.
func (c *ScriptedConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// OnWrite registers fn to observe each written frame, after it is recorded.
// fn may call Push to answer like a server would.
func (c *ScriptedConn) OnWrite(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
}

// ReadMessage implements ingest.Conn.
func (c *ScriptedConn) ReadMessage() (string, error) {
	select {
	case <-c.closed:
		return "", ErrConnClosed
	case f, ok := <-c.inbox:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return "", c.endErr
		}
		return f, nil
	}
}

// WriteMessage implements ingest.Conn.
func (c *ScriptedConn) WriteMessage(text string) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, text)
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(text)
	}
	return nil
}

// Close implements ingest.Conn.
func (c *ScriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (c *ScriptedConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Sent returns a copy of the frames written so far.
func (c *ScriptedConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// ScriptedDialer hands out a prepared connection and records dialled URLs.
type ScriptedDialer struct {
	Conn *ScriptedConn
	// Err, when set, is returned instead of Conn.
	Err error

	mu   sync.Mutex
	urls []string
}

// Dial implements ingest.Dialer.
func (d *ScriptedDialer) Dial(ctx context.Context, url string) (ingest.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// URLs returns the dialled URLs in order.
func (d *ScriptedDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.urls))
	copy(out, d.urls)
	return out
}

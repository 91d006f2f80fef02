package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one text-frame connection to the sync service.
type Conn interface {
	// ReadMessage blocks for the next text frame. It returns io.EOF when
	// the peer closed the connection normally.
	ReadMessage() (string, error)
	// WriteMessage sends one text frame.
	WriteMessage(text string) error
	// Close releases the connection and unblocks a pending ReadMessage.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebsocketDialer dials the sync service with gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the websocket upgrade. Zero uses 15s.
	HandshakeTimeout time.Duration
	// Header is sent with the upgrade request.
	Header http.Header
	// WriteTimeout bounds each outbound frame. Zero means no deadline.
	WriteTimeout time.Duration
}

// Dial performs the websocket upgrade.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{ws: ws, writeTimeout: d.WriteTimeout}, nil
}

// wsConn serializes writes; gorilla allows one concurrent reader and one
// concurrent writer.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *wsConn) WriteMessage(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	if errors.Is(c.closeErr, websocket.ErrCloseSent) {
		return nil
	}
	return c.closeErr
}

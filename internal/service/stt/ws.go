package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	closeGrace          = time.Second
	readBuffer          = 64
)

// Message is one WebSocket frame read from a backend.
type Message struct {
	Type int
	Data []byte
}

// IsText reports whether m is a text frame.
func (m Message) IsText() bool {
	return m.Type == websocket.TextMessage
}

// WSConn is a backend WebSocket with a read pump, serialized writes and
// context-aware reads.
type WSConn struct {
	conn *websocket.Conn

	msgs    chan Message
	done    chan struct{}
	readErr error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWS connects to rawURL, giving up after timeout when it is > 0. Dial
// failures wrap ErrBackendUnreachable.
func DialWS(ctx context.Context, rawURL string, header http.Header, timeout time.Duration) (*WSConn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: handshake status %d: %v", ErrBackendUnreachable, rawURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnreachable, rawURL, err)
	}

	c := &WSConn{
		conn: conn,
		msgs: make(chan Message, readBuffer),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSConn) readLoop() {
	defer close(c.msgs)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = readError(err, c.done)
			return
		}
		select {
		case c.msgs <- Message{Type: typ, Data: data}:
		case <-c.done:
			c.readErr = io.EOF
			return
		}
	}
}

func readError(err error, done <-chan struct{}) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return io.EOF
	}
	select {
	case <-done:
		return io.EOF
	default:
	}
	return fmt.Errorf("read backend message: %w", err)
}

// Read returns the next message, or io.EOF once the backend closed the
// connection normally.
func (c *WSConn) Read(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case m, ok := <-c.msgs:
		if !ok {
			return Message{}, c.readErr
		}
		return m, nil
	}
}

// ReadTimeout is Read bounded by d. ok is false when nothing arrived in time.
func (c *WSConn) ReadTimeout(ctx context.Context, d time.Duration) (m Message, ok bool, err error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	case <-timer.C:
		return Message{}, false, nil
	case m, open := <-c.msgs:
		if !open {
			return Message{}, false, c.readErr
		}
		return m, true, nil
	}
}

func (c *WSConn) WriteBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, websocket.BinaryMessage, data)
}

func (c *WSConn) WriteText(ctx context.Context, text string) error {
	return c.write(ctx, websocket.TextMessage, []byte(text))
}

func (c *WSConn) write(ctx context.Context, typ int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(typ, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write backend message: %w", err)
	}
	return nil
}

// Close sends a close frame on a best-effort basis and releases the socket.
// It is safe to call more than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace),
		)
		err = c.conn.Close()
	})
	return err
}

// BackendURL parses a configured backend address. http(s) becomes ws(s), a
// bare host:port gets the ws scheme and an empty path gets defaultPath.
func BackendURL(raw, defaultPath string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "http://"):
		raw = "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		raw = "wss://" + strings.TrimPrefix(raw, "https://")
	case !strings.Contains(raw, "://"):
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}
	return u, nil
}

package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsServer(t *testing.T, handle func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSConn_EchoAndNormalClose(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn) {
		typ, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		_ = c.WriteMessage(typ, data)
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialWS(ctx, url, nil, time.Second)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteText(ctx, "hello"); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !msg.IsText() || string(msg.Data) != "hello" {
		t.Errorf("unexpected echo %q (type %d)", msg.Data, msg.Type)
	}

	if _, err := conn.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after normal close, got %v", err)
	}
}

func TestWSConn_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(c *websocket.Conn) {
		<-release
	})
	defer close(release)

	ctx := context.Background()
	conn, err := DialWS(ctx, url, nil, time.Second)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	defer conn.Close()

	_, ok, err := conn.ReadTimeout(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadTimeout() error = %v", err)
	}
	if ok {
		t.Error("expected no message before timeout")
	}
}

func TestWSConn_ReadHonoursContext(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(c *websocket.Conn) {
		<-release
	})
	defer close(release)

	conn, err := DialWS(context.Background(), url, nil, time.Second)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := conn.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestWSConn_WriteAfterClose(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(c *websocket.Conn) {
		<-release
	})
	defer close(release)

	conn, err := DialWS(context.Background(), url, nil, time.Second)
	if err != nil {
		t.Fatalf("DialWS() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := conn.WriteBinary(context.Background(), []byte{1, 2}); !errors.Is(err, ErrConnClosed) {
		t.Errorf("expected ErrConnClosed, got %v", err)
	}
}

func TestDialWS_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := DialWS(context.Background(), url, nil, time.Second)
	if !errors.Is(err, ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", err)
	}
}

func TestDialWS_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DialWS(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil, time.Second)
	if !errors.Is(err, ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status in error, got %v", err)
	}
}

package haiv

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/service/stt"
)

func TestBuildURL(t *testing.T) {
	cfg := Config{URL: "haiv.example.com:40001", ProjectID: "p-1", Model: "KOREAN_ONLINE_8K", NumSpeaker: 2}

	raw, err := buildURL(cfg, stt.Options{Language: "ko"})
	if err != nil {
		t.Fatalf("buildURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	if u.Scheme != "ws" || u.Host != "haiv.example.com:40001" || u.Path != "/client/ws/speech" {
		t.Errorf("unexpected url %s", raw)
	}
	q := u.Query()
	want := map[string]string{
		"model":       "KOREAN_ONLINE_8K",
		"project":     "p-1",
		"num-speaker": "2",
		"mode":        "batch",
		"verbosity":   "final",
		"lang":        "ko",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}

	raw, _ = buildURL(Config{URL: "ws://h:1"}, stt.Options{RealTime: true})
	u, _ = url.Parse(raw)
	if u.Query().Has("mode") {
		t.Errorf("real-time session must not request batch mode: %s", raw)
	}
	if u.Query().Has("project") || u.Query().Has("num-speaker") {
		t.Errorf("unset options must be omitted: %s", raw)
	}
}

func TestPacing(t *testing.T) {
	c := New(Config{ByteRate: 16000})

	p := c.Pacing(stt.Options{RealTime: true})
	if p.ChunkSize != 4000 {
		t.Errorf("expected byterate/4 = 4000, got %d", p.ChunkSize)
	}
	if p.Delay != 250*time.Millisecond {
		t.Errorf("expected 250ms delay, got %v", p.Delay)
	}
	if !p.StripWAVHeader {
		t.Error("expected WAV header stripping")
	}
	if p.Prefetch != 0 {
		t.Errorf("expected no prefetch, got %d", p.Prefetch)
	}

	if p := c.Pacing(stt.Options{}); p.Delay != 0 {
		t.Errorf("expected unthrottled batch sends, got %v", p.Delay)
	}
}

func TestDecode(t *testing.T) {
	c := &conn{prefix: "화자", logger: zerolog.Nop()}

	tests := []struct {
		name    string
		msg     string
		wantN   int
		wantEOF bool
		wantErr error
	}{
		{"progress", "Progress: 42.0", 0, false, nil},
		{"malformed", "{not json", 0, false, stt.ErrMalformedMessage},
		{"partial ignored", `{"status":0,"result":{"final":false,"hypotheses":[{"transcript":"부분"}]}}`, 0, false, nil},
		{"final without hypotheses", `{"status":0,"result":{"final":true,"hypotheses":[]}}`, 0, false, nil},
		{"result without status", `{"result":{"final":true,"hypotheses":[{"transcript":"무시"}]}}`, 0, false, nil},
		{"final", `{"status":0,"segment-start":1.5,"segment-length":2.5,"speaker":1,"result":{"final":true,"hypotheses":[{"transcript":"안녕하세요"}]}}`, 1, false, nil},
		{"eos", `{"status":0,"EOS":true}`, 0, true, nil},
		{"non-zero status eos", `{"status":1,"EOS":true}`, 0, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.decode([]byte(tt.msg))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantEOF:
				if !errors.Is(err, io.EOF) {
					t.Fatalf("expected io.EOF, got %v", err)
				}
			case err != nil:
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantN {
				t.Errorf("expected %d candidates, got %d", tt.wantN, len(got))
			}
		})
	}

	got, _ := c.decode([]byte(`{"status":0,"segment-start":1.5,"segment-length":2.5,"speaker":1,"result":{"final":true,"hypotheses":[{"transcript":"안녕하세요"}]}}`))
	want := stt.Candidate{Start: 1.5, End: 4.0, Text: "안녕하세요", Speaker: "화자1", Final: true}
	if got[0] != want {
		t.Errorf("decode() = %+v, want %+v", got[0], want)
	}

	got, _ = c.decode([]byte(`{"status":0,"segment-start":0,"segment-length":1,"result":{"final":true,"hypotheses":[{"transcript":"화자 없음"}]}}`))
	if got[0].Speaker != "" {
		t.Errorf("expected no speaker label, got %q", got[0].Speaker)
	}
}

func TestConn_RoundTrip(t *testing.T) {
	query := make(chan url.Values, 1)
	received := make(chan int, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query <- r.URL.Query()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		total := 0
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if typ == websocket.TextMessage && string(data) == "EOS" {
				break
			}
			total += len(data)
		}
		received <- total

		for _, msg := range []string{
			"Progress: 100.0",
			`{"status":0,"segment-start":0.2,"segment-length":0.4,"speaker":0,"result":{"final":true,"hypotheses":[{"transcript":"안녕하세요 여러분"}]}}`,
			`{"status":0,"EOS":true}`,
		} {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := New(Config{URL: srv.URL, ProjectID: "proj"})
	conn, err := c.Open(ctx, stt.Options{Language: "ko", RealTime: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if q := <-query; q.Get("project") != "proj" || q.Get("verbosity") != "final" {
		t.Errorf("unexpected query %v", q)
	}

	for i := 0; i < 3; i++ {
		if err := conn.SendAudio(ctx, make([]byte, 4000)); err != nil {
			t.Fatalf("SendAudio() error = %v", err)
		}
	}
	if err := conn.CloseSend(ctx); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}
	if n := <-received; n != 12000 {
		t.Errorf("expected 12000 bytes at the backend, got %d", n)
	}

	var got []stt.Candidate
	for {
		batch, err := conn.Receive(ctx)
		got = append(got, batch...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
	}
	if len(got) != 1 || got[0].Text != "안녕하세요 여러분" || got[0].Speaker != "화자0" {
		t.Errorf("unexpected candidates %+v", got)
	}
}

func TestOpen_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := New(Config{URL: addr}).Open(context.Background(), stt.Options{ConnectTimeout: time.Second})
	if !errors.Is(err, stt.ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", err)
	}
}

package http

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ktv-subtitle-service/internal/service/speaker"
)

// voice returns half a second of PCM whose first byte selects the test voice.
func voice(first byte) []byte {
	pcm := make([]byte, 16000)
	pcm[0] = first
	return pcm
}

func (s *testServer) postPCM(t *testing.T, path string, pcm []byte) (*http.Response, []byte) {
	t.Helper()
	return s.do(t, http.MethodPost, path, string(pcm))
}

func TestSpeakerAnalyze(t *testing.T) {
	s := newTestServer(t)

	steps := []struct {
		name        string
		pcm         []byte
		wantSpeaker int
		wantChanged bool
	}{
		{"first segment sets the reference", voice(0), 0, false},
		{"same voice", voice(0), 0, false},
		{"new voice toggles", voice(1), 1, true},
		{"too short keeps speaker", make([]byte, 800), 1, false},
		{"back to first voice", voice(0), 0, true},
	}
	for _, st := range steps {
		resp, body := s.postPCM(t, "/v1/speaker/analyze", st.pcm)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d (%s)", st.name, resp.StatusCode, body)
		}
		var got speaker.Decision
		decode(t, body, &got)
		if got.Speaker != st.wantSpeaker || got.Changed != st.wantChanged {
			t.Errorf("%s: got %+v", st.name, got)
		}
	}

	resp, body := s.do(t, http.MethodGet, "/v1/speaker/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status speakerStatus
	decode(t, body, &status)
	if status.Status != "ready" || status.Threshold != 0.7 || status.CurrentSpeaker != 0 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestSpeakerReset(t *testing.T) {
	s := newTestServer(t)

	s.postPCM(t, "/v1/speaker/analyze", voice(0))
	s.postPCM(t, "/v1/speaker/analyze", voice(1))

	resp, body := s.do(t, http.MethodPost, "/v1/speaker/reset", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status speakerStatus
	decode(t, body, &status)
	if status.Status != "reset" || status.CurrentSpeaker != 0 {
		t.Errorf("unexpected reset response %+v", status)
	}

	// After a reset the next segment only sets a new reference.
	_, body = s.postPCM(t, "/v1/speaker/analyze", voice(1))
	var got speaker.Decision
	decode(t, body, &got)
	if got.Changed || got.Speaker != 0 {
		t.Errorf("expected fresh reference, got %+v", got)
	}
}

func TestSpeakerAnalyze_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/v1/speaker/analyze", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func dialSpeaker(t *testing.T, s *testServer, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/v1/speaker/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readDecision(t *testing.T, conn *websocket.Conn) speaker.Decision {
	t.Helper()
	var dec speaker.Decision
	if err := conn.ReadJSON(&dec); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return dec
}

func TestSpeakerWebSocket(t *testing.T) {
	s := newTestServer(t)
	conn := dialSpeaker(t, s, "")

	send := func(typ int, data []byte) {
		t.Helper()
		if err := conn.WriteMessage(typ, data); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	// Text frames and frames under 0.05s get no answer.
	send(websocket.TextMessage, []byte("hello"))
	send(websocket.BinaryMessage, make([]byte, 100))

	send(websocket.BinaryMessage, voice(0))
	if dec := readDecision(t, conn); dec.Changed || dec.Speaker != 0 {
		t.Errorf("first frame: %+v", dec)
	}
	send(websocket.BinaryMessage, voice(1))
	if dec := readDecision(t, conn); !dec.Changed || dec.Speaker != 1 {
		t.Errorf("second frame: %+v", dec)
	}
	// Long enough to be answered, too short to decide.
	send(websocket.BinaryMessage, make([]byte, 4000))
	if dec := readDecision(t, conn); dec.Changed || dec.Speaker != 1 {
		t.Errorf("short frame: %+v", dec)
	}

	// Connections do not share state with the REST detector.
	_, body := s.do(t, http.MethodGet, "/v1/speaker/status", "")
	var status speakerStatus
	decode(t, body, &status)
	if status.CurrentSpeaker != 0 {
		t.Errorf("REST detector changed by WebSocket client: %+v", status)
	}
}

func TestSpeakerWebSocket_Window(t *testing.T) {
	s := newTestServer(t)
	conn := dialSpeaker(t, s, "?window=true")

	// Two quarter-second frames fill one half-second step.
	for i := 0; i < 2; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 8000)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}
	if dec := readDecision(t, conn); dec.Changed || dec.Speaker != 0 {
		t.Errorf("first window: %+v", dec)
	}

	// The window still starts with the first voice.
	if err := conn.WriteMessage(websocket.BinaryMessage, voice(1)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if dec := readDecision(t, conn); dec.Changed || dec.Speaker != 0 {
		t.Errorf("second window: %+v", dec)
	}
}

package mock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ktv-subtitle-service/internal/service/stt"
)

// 2s of 16kHz mono PCM sent in eight chunks.
const (
	chunk        = 8000
	perUtterance = 8
)

func open(t *testing.T, c *Client, previews bool) stt.Conn {
	t.Helper()
	conn, err := c.Open(context.Background(), stt.Options{SampleRate: 16000, Previews: previews})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendChunks(t *testing.T, conn stt.Conn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := conn.SendAudio(context.Background(), make([]byte, chunk)); err != nil {
			t.Fatalf("SendAudio() error = %v", err)
		}
	}
}

func receive(t *testing.T, conn stt.Conn) []stt.Candidate {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	return batch
}

func TestConn_FinalPerUtterance(t *testing.T) {
	conn := open(t, New(Config{}), false)

	sendChunks(t, conn, perUtterance)

	batch := receive(t, conn)
	if len(batch) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(batch))
	}
	got := batch[0]
	if !got.Final {
		t.Error("expected final candidate")
	}
	if got.Text != DefaultUtterances[0].Final {
		t.Errorf("expected %q, got %q", DefaultUtterances[0].Final, got.Text)
	}
	if got.Start != 0 {
		t.Errorf("expected start 0, got %v", got.Start)
	}
	if got.Speaker != "화자1" {
		t.Errorf("expected speaker 화자1, got %q", got.Speaker)
	}
	if got.Scores == nil || got.Scores.AvgLogprob >= 0 {
		t.Errorf("expected negative avg logprob, got %+v", got.Scores)
	}
}

func TestConn_PartialsBeforeFinal(t *testing.T) {
	conn := open(t, New(Config{}), true)

	sendChunks(t, conn, perUtterance)

	var partials []string
	for {
		batch := receive(t, conn)
		if batch[0].Final {
			break
		}
		partials = append(partials, batch[0].Text)
	}
	want := DefaultUtterances[0].Partials
	if len(partials) != len(want) {
		t.Fatalf("expected %d partials, got %v", len(want), partials)
	}
	for i := range want {
		if partials[i] != want[i] {
			t.Errorf("partial %d = %q, want %q", i, partials[i], want[i])
		}
	}
}

func TestConn_CloseSendFlushesAndCompletes(t *testing.T) {
	conn := open(t, New(Config{}), false)

	sendChunks(t, conn, perUtterance+2)
	if err := conn.CloseSend(context.Background()); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}

	first := receive(t, conn)
	second := receive(t, conn)
	if first[0].Text != DefaultUtterances[0].Final || second[0].Text != DefaultUtterances[1].Final {
		t.Errorf("unexpected finals %q, %q", first[0].Text, second[0].Text)
	}
	if second[0].Speaker != "화자2" {
		t.Errorf("expected alternating speaker 화자2, got %q", second[0].Speaker)
	}
	if second[0].Start != 2 {
		t.Errorf("expected second utterance at 2s, got %v", second[0].Start)
	}

	if _, err := conn.Receive(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after completion, got %v", err)
	}
}

func TestConn_CloseSend_Idempotent(t *testing.T) {
	conn := open(t, New(Config{}), false)

	if err := conn.CloseSend(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := conn.CloseSend(context.Background()); err != nil {
		t.Fatalf("unexpected error on second CloseSend: %v", err)
	}
}

func TestConn_ReceiveAfterClose(t *testing.T) {
	conn := open(t, New(Config{}), false)

	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if _, err := conn.Receive(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
}

func TestConn_ReceiveHonoursContext(t *testing.T) {
	conn := open(t, New(Config{}), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClient_CyclesThroughUtterances(t *testing.T) {
	c := New(Config{})
	_ = open(t, c, false)
	second := open(t, c, false)

	sendChunks(t, second, perUtterance)
	batch := receive(t, second)
	if batch[0].Text != DefaultUtterances[1].Final {
		t.Errorf("expected second session to start at utterance 1, got %q", batch[0].Text)
	}
}

func TestDefaultUtterances(t *testing.T) {
	if len(DefaultUtterances) != 5 {
		t.Errorf("expected 5 default utterances, got %d", len(DefaultUtterances))
	}

	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}

func TestPacing(t *testing.T) {
	c := New(Config{})
	if p := c.Pacing(stt.Options{SampleRate: 16000}); p.ChunkSize != 8000 || p.Delay != 0 {
		t.Errorf("unexpected file pacing %+v", p)
	}
	if p := c.Pacing(stt.Options{SampleRate: 16000, RealTime: true}); p.Delay != 250*time.Millisecond {
		t.Errorf("unexpected real-time pacing %+v", p)
	}
}

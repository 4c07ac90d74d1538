package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess stands in for ffmpeg when GO_WANT_HELPER_PROCESS is set.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "pcm":
		_, _ = os.Stdout.Write(make([]byte, 32000))
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func useHelper(t *testing.T, mode string) *[]string {
	t.Helper()
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestDecoder_Args(t *testing.T) {
	d := NewDecoder("", 16000)
	if d.Binary != "ffmpeg" {
		t.Errorf("expected default binary ffmpeg, got %q", d.Binary)
	}

	args := strings.Join(d.Args("/media/news.mp4", 12.5), " ")
	for _, want := range []string{"-ss 12.5", "-i /media/news.mp4", "-ar 16000", "-ac 1", "-f s16le", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("expected %q in args %q", want, args)
		}
	}
	if strings.Index(args, "-ss") > strings.Index(args, "-i ") {
		t.Error("expected -ss before -i for fast input seeking")
	}

	if args := strings.Join(d.Args("in.wav", 0), " "); strings.Contains(args, "-ss") {
		t.Errorf("expected no seek without offset, got %q", args)
	}
}

func TestDecoder_DecodeReadsPCM(t *testing.T) {
	captured := useHelper(t, "pcm")

	stream, err := NewDecoder("ffmpeg", 16000).Decode(context.Background(), "in.mp4", 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(data) != 32000 {
		t.Errorf("expected 32000 bytes, got %d", len(data))
	}
	if len(*captured) == 0 {
		t.Fatal("expected ffmpeg arguments to be captured")
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close() after EOF error = %v", err)
	}
}

func TestDecoder_FailureSurfacesStderr(t *testing.T) {
	useHelper(t, "fail")

	stream, err := NewDecoder("ffmpeg", 16000).Decode(context.Background(), "broken.mp4", 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer stream.Close()

	_, err = io.ReadAll(stream)
	if err == nil {
		t.Fatal("expected an error from a failing ffmpeg")
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestDecoder_CloseStopsProcess(t *testing.T) {
	useHelper(t, "hang")

	stream, err := NewDecoder("ffmpeg", 16000).Decode(context.Background(), "live.m3u8", 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- stream.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Close() did not stop the process")
	}
}

func TestDecoder_EmptyInput(t *testing.T) {
	if _, err := NewDecoder("", 0).Decode(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty input")
	}
}

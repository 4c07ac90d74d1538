package app

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"ktv-subtitle-service/internal/archive"
	"ktv-subtitle-service/internal/config"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	t.Setenv("DICTIONARY_PATH", filepath.Join(t.TempDir(), "stt_dictionaries.json"))
	t.Setenv("ARCHIVE_DRIVER", "memory")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("FFMPEG_PATH", filepath.Join(t.TempDir(), "no-ffmpeg"))
	t.Setenv("LOG_LEVEL", "error")
	return config.Load()
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []string{"google", "haiv", "livekit", "mock", "whisper"}
	if got := a.Registry.Names(); !slices.Equal(got, want) {
		t.Errorf("engines = %v, want %v", got, want)
	}
	if _, ok := a.Archive.(*archive.Memory); !ok {
		t.Errorf("archive = %T, want *archive.Memory", a.Archive)
	}
	if a.Publisher.Enabled() {
		t.Error("publisher should be disabled")
	}
	if a.Ready() {
		t.Error("application ready before Start")
	}

	// A missing ffmpeg only disables file sources.
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !a.Ready() || a.StartupTime.IsZero() {
		t.Error("expected ready application after Start")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if a.Ready() {
		t.Error("application still ready after Shutdown")
	}
}

func TestNew_UnknownArchiveDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Driver = "cassandra"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown archive driver")
	}
}

func TestDefaultEngine(t *testing.T) {
	a := &Application{Cfg: &config.Configuration{STT: config.STTConfig{Engine: "whisper"}}}

	if got := a.DefaultEngine(""); got != "whisper" {
		t.Errorf("DefaultEngine(\"\") = %q", got)
	}
	if got := a.DefaultEngine("haiv"); got != "haiv" {
		t.Errorf("DefaultEngine(haiv) = %q", got)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := testConfig(t)
	sc := SessionConfig(cfg)
	if sc.QueueSize != cfg.Session.QueueSize || sc.IdleTimeout != cfg.Session.IdleTimeout || sc.SampleRate != 16000 {
		t.Errorf("unexpected session config %+v", sc)
	}
}

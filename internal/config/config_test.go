package config

import (
	"os"
	"testing"
	"time"
)

var loadedVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"STT_ENGINE", "STT_LANGUAGE", "STT_SAMPLE_RATE_HZ",
	"HAIV_URL", "HAIV_BYTERATE", "WHISPER_URL",
	"SESSION_QUEUE_SIZE", "SESSION_IDLE_TIMEOUT", "SESSION_MAX_DURATION",
	"DICTIONARY_PATH", "SPEAKER_THRESHOLD", "SPEAKER_MIN_AUDIO",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
	"ARCHIVE_DRIVER", "ARCHIVE_DSN",
}

func unsetAll() {
	for _, v := range loadedVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAll()

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-ktv-subtitle" {
		t.Errorf("expected default principal 'svc-ktv-subtitle', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}

	// STT defaults
	if cfg.STT.Engine != "whisper" {
		t.Errorf("expected default engine 'whisper', got %s", cfg.STT.Engine)
	}
	if cfg.STT.Language != "ko" {
		t.Errorf("expected default language 'ko', got %s", cfg.STT.Language)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.HAIV.URL != "ws://localhost:40001" {
		t.Errorf("unexpected HAIV URL %s", cfg.STT.HAIV.URL)
	}
	if cfg.STT.Whisper.URL != "ws://localhost:6470" {
		t.Errorf("unexpected Whisper URL %s", cfg.STT.Whisper.URL)
	}

	// Session defaults
	if cfg.Session.QueueSize != 64 {
		t.Errorf("expected default queue size 64, got %d", cfg.Session.QueueSize)
	}
	if cfg.Session.IdleTimeout != 30*time.Second {
		t.Errorf("expected default idle timeout 30s, got %v", cfg.Session.IdleTimeout)
	}
	if cfg.Session.MaxDuration != 4*time.Hour {
		t.Errorf("expected default max duration 4h, got %v", cfg.Session.MaxDuration)
	}

	// Speaker defaults
	if cfg.Speaker.Threshold != 0.70 {
		t.Errorf("expected default speaker threshold 0.70, got %v", cfg.Speaker.Threshold)
	}
	if cfg.Speaker.MinAudio != 500*time.Millisecond {
		t.Errorf("expected default min audio 500ms, got %v", cfg.Speaker.MinAudio)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no default brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Archive.Driver != "memory" {
		t.Errorf("expected default archive driver 'memory', got %s", cfg.Archive.Driver)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "auto" {
		t.Errorf("expected default log format 'auto', got %s", cfg.Observability.LogFormat)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("GRPC_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STT_ENGINE", "haiv")
	os.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	os.Setenv("HAIV_BYTERATE", "32000")
	os.Setenv("SESSION_IDLE_TIMEOUT", "45s")
	os.Setenv("SPEAKER_THRESHOLD", "0.82")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	os.Setenv("ARCHIVE_DRIVER", "sqlite")
	os.Setenv("ARCHIVE_DSN", "file:subtitles.db")
	defer unsetAll()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.STT.Engine != "haiv" {
		t.Errorf("expected engine 'haiv', got %s", cfg.STT.Engine)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.HAIV.ByteRate != 32000 {
		t.Errorf("expected byte rate 32000, got %d", cfg.STT.HAIV.ByteRate)
	}
	if cfg.Session.IdleTimeout != 45*time.Second {
		t.Errorf("expected idle timeout 45s, got %v", cfg.Session.IdleTimeout)
	}
	if cfg.Speaker.Threshold != 0.82 {
		t.Errorf("expected speaker threshold 0.82, got %v", cfg.Speaker.Threshold)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "kafka-1:9092" || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Archive.Driver != "sqlite" || cfg.Archive.DSN != "file:subtitles.db" {
		t.Errorf("unexpected archive config %+v", cfg.Archive)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("SESSION_QUEUE_SIZE", "invalid")
	os.Setenv("SESSION_MAX_DURATION", "invalid")
	os.Setenv("SPEAKER_THRESHOLD", "high")
	os.Setenv("KAFKA_ENABLED", "maybe")
	defer unsetAll()

	cfg := Load()

	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Session.QueueSize != 64 {
		t.Errorf("expected default queue size on invalid input, got %d", cfg.Session.QueueSize)
	}
	if cfg.Session.MaxDuration != 4*time.Hour {
		t.Errorf("expected default max duration on invalid input, got %v", cfg.Session.MaxDuration)
	}
	if cfg.Speaker.Threshold != 0.70 {
		t.Errorf("expected default threshold on invalid input, got %v", cfg.Speaker.Threshold)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{"single", "a:9092", 1},
		{"trimmed", " a:9092 , b:9092 ", 2},
		{"only separators", ",,", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_LIST_VAR"
			os.Setenv(key, tt.envValue)
			defer os.Unsetenv(key)

			if got := envOrDefaultList(key, nil); len(got) != tt.expected {
				t.Errorf("envOrDefaultList(%q) = %v, want %d items", tt.envValue, got, tt.expected)
			}
		})
	}
}

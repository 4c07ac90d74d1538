package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the process-wide configuration, loaded from the environment.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Session       SessionConfig
	Dictionary    DictionaryConfig
	Speaker       SpeakerConfig
	Kafka         KafkaConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// STTConfig selects the default engine and holds per-engine connection settings.
type STTConfig struct {
	Engine        string
	SampleRateHz  int
	Language      string
	SpeakerPrefix string
	// FFmpegPath is the decoder binary for file and URL sources.
	FFmpegPath    string

	HAIV    HAIVConfig
	Whisper WhisperConfig
	LiveKit LiveKitConfig
	Google  GoogleConfig
}

type HAIVConfig struct {
	URL        string
	ProjectID  string
	Model      string
	ByteRate   int
	NumSpeaker int
}

type WhisperConfig struct {
	URL   string
	Model string
}

type LiveKitConfig struct {
	URL string
}

type GoogleConfig struct {
	LanguageCode string
}

// SessionConfig bounds a streaming session.
type SessionConfig struct {
	QueueSize      int
	IdleTimeout    time.Duration
	MaxDuration    time.Duration
	ConnectTimeout time.Duration
	// PrefetchChunks and ChunkDelay override the engine pacing when > 0.
	PrefetchChunks int
	ChunkDelay     time.Duration
}

type DictionaryConfig struct {
	Path string
}

type SpeakerConfig struct {
	EmbedderURL string
	Threshold   float64
	MinAudio    time.Duration
	Workers     int
	Window      time.Duration
	Step        time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicFinal   string
	TopicPreview string
	Principal    string
}

type ArchiveConfig struct {
	Driver string
	DSN    string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from environment variables. Unparseable values
// fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-ktv-subtitle")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		STT: STTConfig{
			Engine:        envOrDefault("STT_ENGINE", "whisper"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			Language:      envOrDefault("STT_LANGUAGE", "ko"),
			SpeakerPrefix: envOrDefault("STT_SPEAKER_PREFIX", "화자"),
			FFmpegPath:    envOrDefault("FFMPEG_PATH", "ffmpeg"),
			HAIV: HAIVConfig{
				URL:        envOrDefault("HAIV_URL", "ws://localhost:40001"),
				ProjectID:  envOrDefault("HAIV_PROJECT_ID", ""),
				Model:      envOrDefault("HAIV_MODEL", "KOREAN_ONLINE_8K"),
				ByteRate:   envOrDefaultInt("HAIV_BYTERATE", 16000),
				NumSpeaker: envOrDefaultInt("HAIV_NUM_SPEAKER", 0),
			},
			Whisper: WhisperConfig{
				URL:   envOrDefault("WHISPER_URL", "ws://localhost:6470"),
				Model: envOrDefault("WHISPER_MODEL", "KOREAN_16K"),
			},
			LiveKit: LiveKitConfig{
				URL: envOrDefault("LIVEKIT_URL", "ws://localhost:8000"),
			},
			Google: GoogleConfig{
				LanguageCode: envOrDefault("GOOGLE_LANGUAGE_CODE", "ko-KR"),
			},
		},
		Session: SessionConfig{
			QueueSize:      envOrDefaultInt("SESSION_QUEUE_SIZE", 64),
			IdleTimeout:    envOrDefaultDuration("SESSION_IDLE_TIMEOUT", 30*time.Second),
			MaxDuration:    envOrDefaultDuration("SESSION_MAX_DURATION", 4*time.Hour),
			ConnectTimeout: envOrDefaultDuration("SESSION_CONNECT_TIMEOUT", 10*time.Second),
			PrefetchChunks: envOrDefaultInt("SESSION_PREFETCH_CHUNKS", 0),
			ChunkDelay:     envOrDefaultDuration("SESSION_CHUNK_DELAY", 0),
		},
		Dictionary: DictionaryConfig{
			Path: envOrDefault("DICTIONARY_PATH", "data/stt_dictionaries.json"),
		},
		Speaker: SpeakerConfig{
			EmbedderURL: envOrDefault("SPEAKER_EMBEDDER_URL", "http://localhost:8001"),
			Threshold:   envOrDefaultFloat("SPEAKER_THRESHOLD", 0.70),
			MinAudio:    envOrDefaultDuration("SPEAKER_MIN_AUDIO", 500*time.Millisecond),
			Workers:     envOrDefaultInt("SPEAKER_WORKERS", 2),
			Window:      envOrDefaultDuration("SPEAKER_WINDOW", 5*time.Second),
			Step:        envOrDefaultDuration("SPEAKER_STEP", time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "ktv.subtitle.final"),
			TopicPreview: envOrDefault("KAFKA_TOPIC_PREVIEW", "ktv.subtitle.preview"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Archive: ArchiveConfig{
			Driver: envOrDefault("ARCHIVE_DRIVER", "memory"),
			DSN:    envOrDefault("ARCHIVE_DSN", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "auto"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

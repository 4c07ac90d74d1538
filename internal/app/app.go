package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/archive"
	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/config"
	"ktv-subtitle-service/internal/dictionary"
	"ktv-subtitle-service/internal/events"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/service/postprocess"
	"ktv-subtitle-service/internal/service/session"
	"ktv-subtitle-service/internal/service/speaker"
	"ktv-subtitle-service/internal/service/stt"
	"ktv-subtitle-service/internal/service/stt/google"
	"ktv-subtitle-service/internal/service/stt/haiv"
	"ktv-subtitle-service/internal/service/stt/livekit"
	"ktv-subtitle-service/internal/service/stt/mock"
	"ktv-subtitle-service/internal/service/stt/whisper"
)

// SourceOpener starts decoding a media file or URL into 16-bit mono PCM.
type SourceOpener interface {
	Open(ctx context.Context, input string, startOffset float64) (io.ReadCloser, error)
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Dictionary *dictionary.Store
	Editor     *dictionary.Editor
	Pipeline   *postprocess.Pipeline
	Registry   *stt.Registry
	Sessions   *session.Manager
	Archive    archive.Store
	Publisher  *events.Publisher
	Sources    SourceOpener
	// Embedder is shared by every speaker detector.
	Embedder speaker.Embedder

	ready atomic.Bool
}

// New constructs the Application and every component it serves.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	store, err := dictionary.NewStore(cfg.Dictionary.Path)
	if err != nil {
		return nil, fmt.Errorf("load dictionary defaults: %w", err)
	}
	a.Dictionary = store
	a.Editor = dictionary.NewEditor(store)
	a.Pipeline = postprocess.New(store)
	a.Registry = NewRegistry(cfg)

	a.Archive, err = archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPreview: cfg.Kafka.TopicPreview,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})

	recorders := session.Recorders{
		archive.NewRecorder(a.Archive),
		events.NewRecorder(a.Publisher),
	}
	a.Sessions = session.NewManager(SessionConfig(cfg), a.Registry, a.Pipeline, recorders)
	a.Sources = audio.NewDecoder(cfg.STT.FFmpegPath, cfg.STT.SampleRateHz)
	a.Embedder = speaker.NewPool(
		speaker.NewHTTPEmbedder(cfg.Speaker.EmbedderURL, speaker.WithSampleRate(cfg.STT.SampleRateHz)),
		cfg.Speaker.Workers,
	)

	appLogger.Info().
		Strs("engines", a.Registry.Names()).
		Str("defaultEngine", cfg.STT.Engine).
		Str("archive", cfg.Archive.Driver).
		Bool("kafka", a.Publisher.Enabled()).
		Msg("KTV subtitle service application created")
	return a, nil
}

// NewRegistry registers every supported backend from cfg.
func NewRegistry(cfg *config.Configuration) *stt.Registry {
	prefix := cfg.STT.SpeakerPrefix
	return stt.NewRegistry(
		haiv.New(haiv.Config{
			URL:           cfg.STT.HAIV.URL,
			ProjectID:     cfg.STT.HAIV.ProjectID,
			Model:         cfg.STT.HAIV.Model,
			ByteRate:      cfg.STT.HAIV.ByteRate,
			NumSpeaker:    cfg.STT.HAIV.NumSpeaker,
			SpeakerPrefix: prefix,
		}),
		whisper.New(whisper.Config{
			URL:           cfg.STT.Whisper.URL,
			Model:         cfg.STT.Whisper.Model,
			SpeakerPrefix: prefix,
		}),
		livekit.New(livekit.Config{
			URL:           cfg.STT.LiveKit.URL,
			SpeakerPrefix: prefix,
		}),
		google.New(google.Config{
			LanguageCode:   cfg.STT.Google.LanguageCode,
			SampleRateHz:   cfg.STT.SampleRateHz,
			InterimResults: true,
			SpeakerPrefix:  prefix,
		}),
		mock.New(mock.Config{SpeakerPrefix: prefix}),
	)
}

// SessionConfig maps the configuration onto session limits.
func SessionConfig(cfg *config.Configuration) session.Config {
	return session.Config{
		QueueSize:      cfg.Session.QueueSize,
		IdleTimeout:    cfg.Session.IdleTimeout,
		MaxDuration:    cfg.Session.MaxDuration,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		PrefetchChunks: cfg.Session.PrefetchChunks,
		ChunkDelay:     cfg.Session.ChunkDelay,
		SampleRate:     cfg.STT.SampleRateHz,
		Language:       cfg.STT.Language,
	}
}

// SpeakerConfig maps the configuration onto detector settings.
func (a *Application) SpeakerConfig() speaker.Config {
	return speaker.Config{
		Threshold:  a.Cfg.Speaker.Threshold,
		MinAudio:   a.Cfg.Speaker.MinAudio,
		SampleRate: a.Cfg.STT.SampleRateHz,
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "ktv-subtitle-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start performs startup work before serving traffic.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	snap := a.Dictionary.Reload()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Int("hallucinationPatterns", len(snap.Hallucination)).
		Int("profanityPatterns", len(snap.Profanity)).
		Msg("KTV subtitle service starting")

	if d, ok := a.Sources.(*audio.Decoder); ok {
		if err := d.Available(ctx); err != nil {
			// Live WebSocket sessions still work without ffmpeg.
			startLogger.Warn().Err(err).Msg("file and URL sources disabled")
		}
	}

	a.ready.Store(true)
	return nil
}

// Ready reports whether the application accepts new sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// DefaultEngine returns engine, or the configured default when empty.
func (a *Application) DefaultEngine(engine string) string {
	if engine != "" {
		return engine
	}
	if a.Cfg != nil {
		return a.Cfg.STT.Engine
	}
	return ""
}

// Shutdown stops running sessions and releases the archive and Kafka writers.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().Msg("KTV subtitle service shutting down")

	var errs []error
	if a.Sessions != nil {
		errs = append(errs, a.Sessions.Shutdown(ctx))
	}
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Archive != nil {
		errs = append(errs, a.Archive.Close())
	}
	return errors.Join(errs...)
}

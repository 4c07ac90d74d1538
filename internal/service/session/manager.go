// Package session drives streaming transcription sessions: one send
// goroutine pacing audio into an STT backend and one receive goroutine
// turning backend results into subtitle events.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
	"ktv-subtitle-service/internal/schema"
	"ktv-subtitle-service/internal/service/postprocess"
	"ktv-subtitle-service/internal/service/stt"
)

// Config bounds every session started by a Manager.
type Config struct {
	QueueSize      int
	IdleTimeout    time.Duration
	MaxDuration    time.Duration
	ConnectTimeout time.Duration
	// PrefetchChunks and ChunkDelay override the engine pacing when > 0.
	PrefetchChunks int
	ChunkDelay     time.Duration
	SampleRate     int
	Language       string
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		QueueSize:      64,
		IdleTimeout:    30 * time.Second,
		MaxDuration:    4 * time.Hour,
		ConnectTimeout: 10 * time.Second,
		SampleRate:     16000,
		Language:       "ko",
	}
}

// Request describes one streaming transcription.
type Request struct {
	Engine string
	// RealTime paces audio at playback speed (sync mode).
	RealTime    bool
	StartOffset float64
	Diarization bool
	// DetectSpeakerChange enables the speaker-break heuristic.
	DetectSpeakerChange bool
	// Previews emits non-final subtitles for backends that produce them.
	Previews bool
	// Source is a free-form description of the audio origin, kept for
	// logging and the archive.
	Source string
}

// Info is the read-only description of a session.
type Info struct {
	ID        string
	Engine    string
	Request   Request
	StartedAt time.Time
}

// Recorder observes session progress. Implementations must not block for
// long; they run on the receive goroutine.
type Recorder interface {
	SessionStarted(ctx context.Context, info Info)
	SubtitleEmitted(ctx context.Context, info Info, sub models.Subtitle)
	SessionEnded(ctx context.Context, info Info, state State)
}

// Recorders fans out to several recorders in order.
type Recorders []Recorder

func (rs Recorders) SessionStarted(ctx context.Context, info Info) {
	for _, r := range rs {
		r.SessionStarted(ctx, info)
	}
}

func (rs Recorders) SubtitleEmitted(ctx context.Context, info Info, sub models.Subtitle) {
	for _, r := range rs {
		r.SubtitleEmitted(ctx, info, sub)
	}
}

func (rs Recorders) SessionEnded(ctx context.Context, info Info, state State) {
	for _, r := range rs {
		r.SessionEnded(ctx, info, state)
	}
}

// Manager starts sessions and tracks the ones still running.
type Manager struct {
	cfg       Config
	registry  *stt.Registry
	pipeline  *postprocess.Pipeline
	validator *schema.Validator
	recorder  Recorder
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. recorder may be nil.
func NewManager(cfg Config, registry *stt.Registry, pipeline *postprocess.Pipeline, recorder Recorder) *Manager {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if recorder == nil {
		recorder = Recorders(nil)
	}
	return &Manager{
		cfg:       cfg,
		registry:  registry,
		pipeline:  pipeline,
		validator: schema.New(),
		recorder:  recorder,
		logger:    logging.WithComponent("session"),
		sessions:  make(map[string]*Session),
	}
}

// Start begins streaming source to the requested engine. The session takes
// ownership of source and closes it when it implements io.Closer. Backend
// failures surface as an error event; only an unknown engine fails Start.
func (m *Manager) Start(ctx context.Context, req Request, source io.Reader) (*Session, error) {
	client, err := m.registry.Get(req.Engine)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("session: nil audio source")
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		info: Info{
			ID:        uuid.NewString(),
			Engine:    client.Name(),
			Request:   req,
			StartedAt: time.Now(),
		},
		cfg:       m.cfg,
		client:    client,
		source:    source,
		pipeline:  m.pipeline,
		validator: m.validator,
		recorder:  m.recorder,
		lifecycle: NewLifecycle(),
		events:    make(chan models.Event, m.cfg.QueueSize),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.logger = logging.WithSession(s.info.ID, s.info.Engine)

	m.mu.Lock()
	m.sessions[s.info.ID] = s
	m.mu.Unlock()

	metrics.DefaultMetrics.RecordSessionStart(s.info.Engine)
	m.recorder.SessionStarted(ctx, s.info)
	s.logger.Info().
		Bool("realTime", req.RealTime).
		Float64("startOffset", req.StartOffset).
		Bool("diarization", req.Diarization).
		Str("source", req.Source).
		Msg("session started")

	go func() {
		s.run(ctx)
		m.mu.Lock()
		delete(m.sessions, s.info.ID)
		m.mu.Unlock()
	}()
	return s, nil
}

// Get returns a running session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns the running sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Engines returns the registered engine names.
func (m *Manager) Engines() []string {
	return m.registry.Names()
}

// Shutdown cancels every running session and waits for them to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	running := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		running = append(running, s)
	}
	m.mu.RUnlock()

	for _, s := range running {
		s.cancel()
	}
	for _, s := range running {
		select {
		case <-s.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown sessions: %w", ctx.Err())
		}
	}
	return nil
}

package speaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
)

// DefaultThreshold is the cosine similarity below which two segments are
// attributed to different speakers.
const DefaultThreshold = 0.70

// ErrDimensionMismatch is returned by Cosine for vectors of different length.
var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// Config tunes a detector.
type Config struct {
	Threshold  float64
	MinAudio   time.Duration
	SampleRate int
}

// DefaultConfig returns threshold 0.70 and a 0.5s minimum segment.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, MinAudio: 500 * time.Millisecond, SampleRate: 16000}
}

// Decision is the outcome of one Process call.
type Decision struct {
	Changed bool `json:"speaker_changed"`
	// Speaker is the binary speaker flag, 0 or 1.
	Speaker    int     `json:"speaker"`
	Similarity float64 `json:"similarity,omitempty"`
	// Skipped is set when the segment was too short to decide.
	Skipped bool `json:"-"`
}

// Detector toggles a binary speaker flag whenever a segment's voice differs
// from the previous segment. It tracks the most recent voice, not an
// enrolled one. One detector serves one connection.
type Detector struct {
	embedder  Embedder
	threshold float64
	minBytes  int
	logger    zerolog.Logger

	mu        sync.Mutex
	reference []float64
	current   int
}

func NewDetector(embedder Embedder, cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinAudio <= 0 {
		cfg.MinAudio = def.MinAudio
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	return &Detector{
		embedder:  embedder,
		threshold: cfg.Threshold,
		minBytes:  int(cfg.MinAudio.Seconds()*float64(cfg.SampleRate)) * 2,
		logger:    logging.WithComponent("speaker"),
	}
}

// Threshold returns the similarity threshold in use.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Speaker returns the current speaker flag.
func (d *Detector) Speaker() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Reset forgets the reference voice and returns the flag to 0.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reference = nil
	d.current = 0
	d.logger.Debug().Msg("speaker state reset")
}

// Process decides whether pcm (16-bit mono) was spoken by a different
// speaker than the previous segment. Segments shorter than the minimum and
// embedding failures report no change; failures also return the error.
func (d *Detector) Process(ctx context.Context, pcm []byte) (Decision, error) {
	if len(pcm) < d.minBytes {
		metrics.DefaultMetrics.RecordSpeakerDecision("skipped")
		return Decision{Speaker: d.Speaker(), Skipped: true}, nil
	}

	vec, err := d.embedder.Embed(ctx, pcm)
	if err != nil {
		metrics.DefaultMetrics.RecordSpeakerDecision("error")
		d.logger.Error().Err(err).Msg("voice embedding failed")
		return Decision{Speaker: d.Speaker()}, fmt.Errorf("embed segment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference == nil {
		d.reference = vec
		metrics.DefaultMetrics.RecordSpeakerDecision("same")
		return Decision{Speaker: d.current}, nil
	}

	sim, err := Cosine(d.reference, vec)
	if err != nil {
		// Restart from this voice.
		d.reference = vec
		metrics.DefaultMetrics.RecordSpeakerDecision("error")
		return Decision{Speaker: d.current}, err
	}

	dec := Decision{Speaker: d.current, Similarity: sim}
	if sim < d.threshold {
		d.current = 1 - d.current
		dec.Changed = true
		dec.Speaker = d.current
		metrics.DefaultMetrics.RecordSpeakerDecision("changed")
		d.logger.Info().Float64("similarity", sim).Int("speaker", d.current).Msg("speaker change detected")
	} else {
		metrics.DefaultMetrics.RecordSpeakerDecision("same")
		d.logger.Debug().Float64("similarity", sim).Msg("same speaker")
	}
	d.reference = vec
	return dec, nil
}

// Cosine returns the cosine similarity of a and b. Zero vectors have
// similarity 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Package postprocess turns raw STT text into broadcast-safe subtitle text.
//
// Stages run in a fixed order: music detection on the raw text (a match
// short-circuits everything else), whitespace normalization, hallucination
// filtering, score gating, dictionary correction, broadcast-safety masking and
// the optional speaker-break heuristic. Line splitting is separate and used by
// callers that need fixed-width lines.
package postprocess

import (
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/dictionary"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
)

// Tables supplies the current dictionary snapshot.
type Tables interface {
	Snapshot() *dictionary.Snapshot
}

// GateThresholds reject candidates whose backend scores indicate noise.
type GateThresholds struct {
	MinAvgLogprob   float64
	MaxNoSpeechProb float64
}

func DefaultGateThresholds() GateThresholds {
	return GateThresholds{MinAvgLogprob: -0.8, MaxNoSpeechProb: 0.95}
}

// Options select optional behaviour per candidate.
type Options struct {
	// Scores are present only for backends that report them.
	Scores              *Scores
	DetectSpeakerChange bool
}

// Result is the outcome of Process. Text is empty when the candidate was dropped.
type Result struct {
	Text           string
	Dropped        bool
	Reason         string
	Music          MusicResult
	ProfanityCount int
	SensitiveCount int
}

// Pipeline applies the postprocessing stages against the current tables.
type Pipeline struct {
	tables Tables
	music  MusicThresholds
	gate   GateThresholds
	logger zerolog.Logger
}

// New returns a pipeline with default thresholds.
func New(tables Tables) *Pipeline {
	return &Pipeline{
		tables: tables,
		music:  DefaultMusicThresholds(),
		gate:   DefaultGateThresholds(),
		logger: logging.WithComponent("postprocess"),
	}
}

// WithMusicThresholds returns a copy using th for the statistical music check.
func (p *Pipeline) WithMusicThresholds(th MusicThresholds) *Pipeline {
	cp := *p
	cp.music = th
	return &cp
}

// Rules returns the subtitle rules of the current snapshot.
func (p *Pipeline) Rules() dictionary.SubtitleRules {
	return p.tables.Snapshot().Rules
}

// Process runs one candidate through every stage.
func (p *Pipeline) Process(raw string, opts Options) Result {
	start := time.Now()
	defer func() {
		metrics.DefaultMetrics.RecordPipelineLatency(time.Since(start).Seconds())
	}()

	snap := p.tables.Snapshot()

	if m := DetectMusic(snap, raw, opts.Scores, p.music); m.IsMusic {
		metrics.DefaultMetrics.RecordMusic(string(m.Type))
		p.logger.Debug().
			Str("raw", raw).
			Str("label", m.Label).
			Float64("confidence", m.Confidence).
			Msg("music detected")
		return Result{Text: m.Label, Music: m}
	}

	text := Normalize(raw)
	if text == "" {
		return p.drop("empty", raw)
	}

	if bad, reason := IsHallucination(snap, text); bad {
		return p.drop("hallucination_"+reason, raw)
	}

	if s := opts.Scores; s != nil {
		if s.AvgLogprob < p.gate.MinAvgLogprob {
			return p.drop("low_confidence", raw)
		}
		if s.NoSpeechProb > p.gate.MaxNoSpeechProb {
			return p.drop("no_speech", raw)
		}
	}

	if snap.Rules.PostprocessingEnabled {
		text = Correct(snap, text)
	}

	text, profanity, sensitive := p.safety(snap, text)

	if opts.DetectSpeakerChange && snap.Rules.PostprocessingEnabled {
		text = InsertSpeakerBreaks(snap, text)
	}

	return Result{Text: text, ProfanityCount: profanity, SensitiveCount: sensitive}
}

// Preview cleans an uncommitted transcript tail for display. Only
// normalization and broadcast safety apply.
func (p *Pipeline) Preview(raw string) string {
	text := Normalize(raw)
	if text == "" {
		return ""
	}
	text, _, _ = p.safety(p.tables.Snapshot(), text)
	return text
}

func (p *Pipeline) safety(snap *dictionary.Snapshot, text string) (string, int, int) {
	text, profanity := FilterProfanity(snap, text)
	text, sensitive := FilterSensitive(snap, text)
	if profanity > 0 || sensitive > 0 {
		metrics.DefaultMetrics.RecordSafetyMasked("profanity", profanity)
		metrics.DefaultMetrics.RecordSafetyMasked("sensitive", sensitive)
		p.logger.Warn().
			Int("profanityCount", profanity).
			Int("sensitiveCount", sensitive).
			Msg("broadcast safety filter applied")
	}
	return text, profanity, sensitive
}

func (p *Pipeline) drop(reason, raw string) Result {
	metrics.DefaultMetrics.RecordDropped(reason)
	p.logger.Debug().Str("reason", reason).Str("raw", raw).Msg("candidate dropped")
	return Result{Dropped: true, Reason: reason}
}

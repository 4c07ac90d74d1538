package postprocess

import (
	"math"
	"strings"

	"ktv-subtitle-service/internal/dictionary"
)

// ContentType classifies what a candidate most likely contains.
type ContentType string

const (
	ContentSpeech  ContentType = "speech"
	ContentMusic   ContentType = "music"
	ContentSinging ContentType = "singing"
)

// Replacement labels emitted in place of music.
const (
	LabelMusic   = "[♪]"
	LabelSinging = "[♪ 노래]"
	LabelAnthem  = "[♪ 애국가]"
)

// MusicThresholds tune the statistical fallback that classifies a candidate
// as music from backend scores alone.
type MusicThresholds struct {
	NoSpeechProb  float64 // must be exceeded
	AvgLogprob    float64 // must be undercut
	MinConfidence float64 // composite confidence must exceed
}

// DefaultMusicThresholds returns the tuned 0.7 / -0.9 / 0.6 thresholds.
func DefaultMusicThresholds() MusicThresholds {
	return MusicThresholds{
		NoSpeechProb:  0.7,
		AvgLogprob:    -0.9,
		MinConfidence: 0.6,
	}
}

// Scores are the per-segment confidence values some backends report.
type Scores struct {
	NoSpeechProb float64
	AvgLogprob   float64
}

// MusicResult is the outcome of DetectMusic.
type MusicResult struct {
	IsMusic    bool
	Type       ContentType
	Confidence float64
	Label      string
}

// DetectMusic classifies raw backend text. Signals are checked in priority
// order: notation markers, lyric/scat syllables, anthem excerpts, then scores.
func DetectMusic(snap *dictionary.Snapshot, raw string, scores *Scores, th MusicThresholds) MusicResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MusicResult{Type: ContentSpeech}
	}

	for _, re := range snap.Music.Notation {
		if re.MatchString(raw) {
			return MusicResult{IsMusic: true, Type: ContentMusic, Confidence: 0.95, Label: LabelMusic}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, re := range snap.Music.Lyrics {
		if re.MatchString(lower) {
			return MusicResult{IsMusic: true, Type: ContentSinging, Confidence: 0.8, Label: LabelSinging}
		}
	}

	for _, re := range snap.Music.Anthem {
		if re.MatchString(raw) {
			return MusicResult{IsMusic: true, Type: ContentSinging, Confidence: 0.9, Label: LabelAnthem}
		}
	}

	if scores != nil && scores.NoSpeechProb > th.NoSpeechProb && scores.AvgLogprob < th.AvgLogprob {
		conf := (scores.NoSpeechProb + (1.0 - math.Abs(scores.AvgLogprob))) / 2
		if conf > th.MinConfidence {
			return MusicResult{IsMusic: true, Type: ContentMusic, Confidence: conf, Label: LabelMusic}
		}
	}

	return MusicResult{Type: ContentSpeech}
}

package stt

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinSpan is the shortest span shown as reported.
	MinSpan = 1.0
	// WidenedSpan replaces spans shorter than MinSpan.
	WidenedSpan = 3.0
	// DefaultSpan is used when a backend reports no end time.
	DefaultSpan = 3.0
)

// Span widens a short backend span and shifts it by offset.
func Span(start, end, offset float64) (float64, float64) {
	if end-start < MinSpan {
		end = start + WidenedSpan
	}
	return start + offset, end + offset
}

// Normalize applies the session-wide candidate rules: empty text is dropped,
// times are shifted and widened, and the speaker is cleared when
// diarization is off.
func Normalize(c Candidate, offset float64, diarization bool) (Candidate, bool) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return Candidate{}, false
	}
	c.Start, c.End = Span(c.Start, c.End, offset)
	if !diarization {
		c.Speaker = ""
	}
	return c, true
}

// SpeakerLabel formats a backend speaker index, e.g. "화자2".
func SpeakerLabel(prefix string, n int) string {
	return fmt.Sprintf("%s%d", prefix, n)
}

// AudioSeconds converts a count of 16-bit mono PCM bytes to seconds.
func AudioSeconds(bytes int64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(bytes) / float64(sampleRate*2)
}

// ParseSeconds reads a timestamp that may be a JSON number, a numeric string
// or an "H:MM:SS(.fff)" clock string.
func ParseSeconds(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return parseClock(s)
	}
	return 0, false
}

func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 {
			return 0, false
		}
		total = total*60 + f
	}
	return total, true
}

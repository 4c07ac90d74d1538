// Package subtitle renders emitted subtitles as SRT or WebVTT files.
package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/service/postprocess"
)

// Format is a subtitle file format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// ParseFormat accepts "srt" and "vtt" in any case. Empty means SRT.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported subtitle format %q", s)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatVTT {
		return "text/vtt; charset=utf-8"
	}
	return "application/x-subrip; charset=utf-8"
}

// Extension returns the file extension for f, with the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Options control rendering.
type Options struct {
	// Speaker prefixes cues with the speaker label: "[화자1] " in SRT and
	// "<v 화자1>" in WebVTT.
	Speaker bool
	// MaxLineLength splits cue text into lines of at most this many runes
	// when > 0.
	MaxLineLength int
}

// Write renders the final subtitles in subs to w, numbering cues from 1.
// Previews are skipped.
func Write(w io.Writer, f Format, subs []models.Subtitle, opts Options) error {
	bw := bufio.NewWriter(w)
	sep := ","
	if f == FormatVTT {
		sep = "."
		bw.WriteString("WEBVTT\n\n")
	}

	n := 0
	for _, sub := range subs {
		if !sub.IsFinal {
			continue
		}
		n++
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			n, Timestamp(sub.StartTime, sep), Timestamp(sub.EndTime, sep), cueText(f, sub, opts))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", f, err)
	}
	return nil
}

// Render is Write into a byte slice.
func Render(f Format, subs []models.Subtitle, opts Options) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, f, subs, opts)
	return buf.Bytes()
}

func cueText(f Format, sub models.Subtitle, opts Options) string {
	text := sub.Text
	if opts.MaxLineLength > 0 {
		text = postprocess.FormatLines(text, opts.MaxLineLength)
	}
	speaker := sub.SpeakerLabel()
	if !opts.Speaker || speaker == "" {
		return text
	}
	if f == FormatVTT {
		return "<v " + speaker + ">" + text
	}
	return "[" + speaker + "] " + text
}

// Timestamp formats seconds as HH:MM:SS followed by sep and milliseconds.
func Timestamp(seconds float64, sep string) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	secs := ms / 1_000
	ms %= 1_000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hours, minutes, secs, sep, ms)
}

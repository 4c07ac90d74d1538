package postprocess

import (
	"strings"
	"unicode"
)

const (
	DefaultMaxLineLength = 40
	DefaultMinLineLength = 10
)

var (
	sentenceEnds = []string{". ", "? ", "! ", "。", "？", "！"}
	replyMarkers = []string{"네, ", "예, ", "네,", "예,"}
	conjunctions = []string{" 그리고 ", " 그런데 ", " 그러나 ", " 하지만 ", " 또한 ", " 그래서 "}
)

// SplitLines breaks text into display lines of at most maxLen runes. Break
// points are tried in order: sentence end, reply marker, conjunction, comma,
// space; without any, the line is cut at exactly maxLen runes. Lines shorter
// than minLen are merged into the previous line when the result still fits.
func SplitLines(text string, maxLen, minLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	if minLen < 0 {
		minLen = 0
	}

	remaining := trimRunes([]rune(text))
	if len(remaining) == 0 {
		return nil
	}
	if len(remaining) <= maxLen {
		return []string{string(remaining)}
	}

	var lines [][]rune
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			lines = append(lines, remaining)
			break
		}
		cut := breakPoint(remaining, maxLen, minLen)
		if line := trimRunes(remaining[:cut]); len(line) > 0 {
			lines = append(lines, line)
		}
		remaining = trimRunes(remaining[cut:])
	}

	merged := make([]string, 0, len(lines))
	var prevLen int
	for _, line := range lines {
		if len(merged) > 0 && len(line) < minLen && prevLen+1+len(line) <= maxLen {
			merged[len(merged)-1] += " " + string(line)
			prevLen += 1 + len(line)
			continue
		}
		merged = append(merged, string(line))
		prevLen = len(line)
	}
	return merged
}

// FormatLines joins SplitLines output with newlines.
func FormatLines(text string, maxLen int) string {
	return strings.Join(SplitLines(text, maxLen, DefaultMinLineLength), "\n")
}

// breakPoint returns the rune offset at which to cut r, which is longer than
// maxLen. The trimmed line before the offset never exceeds maxLen runes.
func breakPoint(r []rune, maxLen, minLen int) int {
	window := r[:min(len(r), maxLen+20)]

	for _, p := range sentenceEnds {
		pr := []rune(p)
		limit := min(len(window), maxLen+len(pr)-1)
		if idx := lastIndex(window[:limit], pr, 0); idx > minLen {
			return idx + len(pr)
		}
	}

	for _, m := range replyMarkers {
		mr := []rune(m)
		kept := len([]rune(strings.TrimSpace(m)))
		if idx := index(window, mr, minLen); idx > 0 && idx+kept <= maxLen {
			return idx + len(mr)
		}
	}

	for _, c := range conjunctions {
		if idx := index(window, []rune(c), minLen); idx > 0 && idx <= maxLen {
			return idx
		}
	}

	if idx := lastIndex(window[:min(len(window), maxLen)], []rune(", "), minLen); idx > 0 {
		return idx + 2
	}

	if idx := lastIndex(window[:min(len(window), maxLen)], []rune(" "), minLen); idx > 0 {
		return idx + 1
	}

	return maxLen
}

// index returns the first position >= from where needle starts, or -1.
func index(hay, needle []rune, from int) int {
	for i := max(from, 0); i+len(needle) <= len(hay); i++ {
		if hasPrefix(hay[i:], needle) {
			return i
		}
	}
	return -1
}

// lastIndex returns the last position >= from where needle fits entirely
// inside hay, or -1.
func lastIndex(hay, needle []rune, from int) int {
	for i := len(hay) - len(needle); i >= max(from, 0); i-- {
		if hasPrefix(hay[i:], needle) {
			return i
		}
	}
	return -1
}

func trimRunes(r []rune) []rune {
	start, end := 0, len(r)
	for start < end && unicode.IsSpace(r[start]) {
		start++
	}
	for end > start && unicode.IsSpace(r[end-1]) {
		end--
	}
	return r[start:end]
}

package postprocess

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"ktv-subtitle-service/internal/dictionary"
)

// Rejection reasons reported by IsHallucination.
const (
	ReasonTooShort       = "too_short"
	ReasonPattern        = "pattern"
	ReasonRepeatedWord   = "repeated_word"
	ReasonSingleWord     = "single_word"
	ReasonRepeatedRune   = "repeated_rune"
	ReasonRepeatedPhrase = "repeated_phrase"
)

// IsHallucination reports whether text looks like model output invented
// during silence, and why.
func IsHallucination(snap *dictionary.Snapshot, text string) (bool, string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= 2 {
		return true, ReasonTooShort
	}

	for _, re := range snap.Hallucination {
		if re.MatchString(text) {
			return true, ReasonPattern
		}
	}

	lower := strings.ToLower(text)
	if repeatedRune(lower) {
		return true, ReasonRepeatedRune
	}
	if repeatedPhrase([]rune(lower)) {
		return true, ReasonRepeatedPhrase
	}

	words := strings.Fields(text)
	for i := 0; i+2 < len(words); i++ {
		if words[i] == words[i+1] && words[i+1] == words[i+2] {
			return true, ReasonRepeatedWord
		}
	}
	if len(words) >= 2 {
		same := true
		for _, w := range words[1:] {
			if w != words[0] {
				same = false
				break
			}
		}
		if same {
			return true, ReasonSingleWord
		}
	}
	return false, ""
}

// repeatedRune reports text made of a single rune repeated at least 4 times.
func repeatedRune(text string) bool {
	var first rune
	n := 0
	for i, r := range text {
		if i == 0 {
			first = r
		} else if r != first {
			return false
		}
		n++
	}
	return n >= 4
}

// repeatedPhrase reports text made of one 2–5 rune unit repeated at least
// twice, optionally separated by whitespace.
func repeatedPhrase(runes []rune) bool {
	for size := 2; size <= 5 && size*2 <= len(runes); size++ {
		unit := runes[:size]
		if repeatsFrom(runes, unit, size) {
			return true
		}
	}
	return false
}

func repeatsFrom(runes, unit []rune, pos int) bool {
	for k := pos; k <= len(runes); k++ {
		if k > pos && !unicode.IsSpace(runes[k-1]) {
			break
		}
		if hasPrefix(runes[k:], unit) {
			next := k + len(unit)
			if next == len(runes) || repeatsFrom(runes, unit, next) {
				return true
			}
		}
	}
	return false
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i := range prefix {
		if runes[i] != prefix[i] {
			return false
		}
	}
	return true
}

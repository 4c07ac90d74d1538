package postprocess

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"ktv-subtitle-service/internal/dictionary"
)

const edgeNoise = ".,!? "

// Normalize trims, collapses whitespace runs, composes Hangul to NFC and
// strips leading and trailing punctuation noise.
func Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	text = norm.NFC.String(text)
	return strings.Trim(text, edgeNoise)
}

// Correct applies government terms, proper nouns, abbreviations and numeric
// expressions, in that order.
func Correct(snap *dictionary.Snapshot, text string) string {
	if text == "" {
		return text
	}
	for _, table := range [][]dictionary.Correction{snap.Government, snap.ProperNouns, snap.Abbreviations} {
		for _, c := range table {
			text = c.Apply(text)
		}
	}
	for _, n := range snap.Numerals {
		text = n.Apply(text)
	}
	return text
}

// FilterProfanity masks every profanity entry and counts the replacements.
func FilterProfanity(snap *dictionary.Snapshot, text string) (string, int) {
	total := 0
	for _, m := range snap.Profanity {
		var n int
		text, n = m.Apply(text)
		total += n
	}
	return text, total
}

// FilterSensitive replaces personal identifiers with bracketed placeholders.
func FilterSensitive(snap *dictionary.Snapshot, text string) (string, int) {
	total := 0
	for _, m := range snap.Sensitive {
		var n int
		text, n = m.Apply(text)
		total += n
	}
	return text, total
}

var (
	newlineRuns  = regexp.MustCompile(`\n+`)
	newlineSpace = regexp.MustCompile(`\s*\n\s*`)
)

// InsertSpeakerBreaks puts a line break before phrases that usually open a
// new speaker's turn.
func InsertSpeakerBreaks(snap *dictionary.Snapshot, text string) string {
	if utf8.RuneCountInString(text) < 5 {
		return text
	}
	result := text
	for _, c := range snap.SpeakerCues {
		result = c.Apply(result)
	}
	result = newlineRuns.ReplaceAllString(result, "\n")
	return newlineSpace.ReplaceAllString(result, "\n")
}

package dictionary

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ProfanityMask replaces every profanity match.
const ProfanityMask = "***"

// Correction is a case-insensitive literal substitution. Matches that fall
// inside an existing occurrence of the replacement are left alone, so
// applying a correction to already corrected text changes nothing.
type Correction struct {
	Key   string
	Value string
	re    *regexp.Regexp
	guard *regexp.Regexp
}

func newCorrection(e Entry) (Correction, bool) {
	if e.Key == "" || e.Key == e.Value {
		return Correction{}, false
	}
	c := Correction{
		Key:   e.Key,
		Value: e.Value,
		re:    regexp.MustCompile("(?i)" + regexp.QuoteMeta(e.Key)),
	}
	if e.Value != "" && strings.Contains(strings.ToLower(e.Value), strings.ToLower(e.Key)) {
		c.guard = regexp.MustCompile("(?i)" + regexp.QuoteMeta(e.Value))
	}
	return c, true
}

// Apply returns text with every unprotected occurrence of Key replaced.
func (c Correction) Apply(text string) string {
	matches := c.re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var protected [][]int
	if c.guard != nil {
		protected = c.guard.FindAllStringIndex(text, -1)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if within(protected, m) {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(c.Value)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func within(spans [][]int, m []int) bool {
	for _, s := range spans {
		if s[0] <= m[0] && m[1] <= s[1] {
			return true
		}
	}
	return false
}

// Mask replaces matches of a pattern with a fixed label.
type Mask struct {
	Source string
	Label  string
	re     *regexp.Regexp
}

// Apply replaces every match and reports how many were replaced.
func (m Mask) Apply(text string) (string, int) {
	n := len(m.re.FindAllStringIndex(text, -1))
	if n == 0 {
		return text, 0
	}
	return m.re.ReplaceAllLiteralString(text, m.Label), n
}

// Numeral rewrites spoken amounts into formatted numbers.
type Numeral struct {
	re         *regexp.Regexp
	replace    string
	multiplier int64
	suffix     string
}

var numberPrinter = message.NewPrinter(language.English)

func (n Numeral) Apply(text string) string {
	if n.multiplier == 0 {
		return n.re.ReplaceAllString(text, n.replace)
	}
	return n.re.ReplaceAllStringFunc(text, func(match string) string {
		sub := n.re.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		v, err := strconv.ParseInt(sub[1], 10, 64)
		if err != nil || v > math.MaxInt64/n.multiplier {
			return match
		}
		return numberPrinter.Sprintf("%d", v*n.multiplier) + n.suffix
	})
}

// Cue is a regex rewrite inserting a line break at a phrase boundary.
type Cue struct {
	re      *regexp.Regexp
	replace string
}

func (c Cue) Apply(text string) string {
	return c.re.ReplaceAllString(text, c.replace)
}

// MusicPatterns are the compiled music detector tables.
type MusicPatterns struct {
	Notation []*regexp.Regexp
	Lyrics   []*regexp.Regexp
	Anthem   []*regexp.Regexp
}

// TableCounts reports entry counts per table.
type TableCounts struct {
	Profanity     int `json:"profanity_count"`
	Sensitive     int `json:"sensitive_count"`
	ProperNouns   int `json:"proper_noun_count"`
	Government    int `json:"government_dict_count"`
	Abbreviations int `json:"abbreviation_count"`
	Hallucination int `json:"hallucination_count"`
}

// Snapshot is an immutable, compiled view of the merged tables. A Snapshot is
// never modified after it is published by the Store.
type Snapshot struct {
	Hallucination []*regexp.Regexp
	Profanity     []Mask
	Sensitive     []Mask
	Government    []Correction
	ProperNouns   []Correction
	Abbreviations []Correction
	Numerals      []Numeral
	Music         MusicPatterns
	SpeakerCues   []Cue
	Rules         SubtitleRules

	// Static counts the built-in entries, Dynamic the backing file entries.
	Static  TableCounts
	Dynamic TableCounts

	LoadedAt time.Time
	ModTime  time.Time
	size     int64
}

// build compiles defaults and a backing document into a Snapshot. Invalid
// entries are logged and skipped.
func build(d *Defaults, doc *Document, logger zerolog.Logger) *Snapshot {
	s := &Snapshot{Rules: doc.SubtitleRules}

	for _, p := range mergeList(d.Hallucination, doc.Hallucination) {
		re, err := regexp.Compile("(?i)^(?:" + p + ")")
		if err != nil {
			logger.Warn().Err(err).Str("pattern", p).Msg("skipping invalid hallucination pattern")
			continue
		}
		s.Hallucination = append(s.Hallucination, re)
	}

	for _, p := range mergeList(d.Profanity, doc.Profanity) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		s.Profanity = append(s.Profanity, Mask{
			Source: p,
			Label:  ProfanityMask,
			re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(p)),
		})
	}

	for _, r := range append(append([]SensitiveRule{}, d.Sensitive...), doc.Sensitive...) {
		re, err := regexp.Compile(r.Pattern)
		if err != nil || r.Pattern == "" {
			logger.Warn().Err(err).Str("pattern", r.Pattern).Msg("skipping invalid sensitive pattern")
			continue
		}
		s.Sensitive = append(s.Sensitive, Mask{Source: r.Pattern, Label: r.Label, re: re})
	}

	s.Government = mergeEntries(d.Government, doc.GovernmentDict)
	s.ProperNouns = mergeEntries(d.ProperNouns, doc.ProperNouns)
	s.Abbreviations = mergeEntries(d.Abbreviations, doc.Abbreviations)

	for _, r := range d.Numeric {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", r.Pattern).Msg("skipping invalid numeric rule")
			continue
		}
		s.Numerals = append(s.Numerals, Numeral{re: re, replace: r.Replace, multiplier: r.Multiplier, suffix: r.Suffix})
	}

	s.Music.Notation = compileAll(d.Music.Notation, "(?i)", logger)
	s.Music.Lyrics = compileAll(d.Music.Lyrics, "(?i)", logger)
	s.Music.Anthem = compileAll(d.Music.Anthem, "(?i)", logger)

	for _, c := range d.SpeakerCues {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", c.Pattern).Msg("skipping invalid speaker cue")
			continue
		}
		s.SpeakerCues = append(s.SpeakerCues, Cue{re: re, replace: c.Replace})
	}

	s.Static = TableCounts{
		Profanity:     len(d.Profanity),
		Sensitive:     len(d.Sensitive),
		ProperNouns:   len(d.ProperNouns),
		Government:    len(d.Government),
		Abbreviations: len(d.Abbreviations),
		Hallucination: len(d.Hallucination),
	}
	s.Dynamic = doc.Counts()
	s.LoadedAt = time.Now()
	return s
}

// Counts reports the entry counts of the document.
func (d *Document) Counts() TableCounts {
	return TableCounts{
		Profanity:     len(d.Profanity),
		Sensitive:     len(d.Sensitive),
		ProperNouns:   len(d.ProperNouns),
		Government:    len(d.GovernmentDict),
		Abbreviations: len(d.Abbreviations),
		Hallucination: len(d.Hallucination),
	}
}

func mergeList(static, dynamic []string) []string {
	seen := make(map[string]struct{}, len(static))
	out := make([]string, 0, len(static)+len(dynamic))
	for _, p := range static {
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range dynamic {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func mergeEntries(static, dynamic []Entry) []Correction {
	keys := make(map[string]struct{}, len(static))
	var out []Correction
	for _, e := range static {
		keys[e.Key] = struct{}{}
		if c, ok := newCorrection(e); ok {
			out = append(out, c)
		}
	}
	for _, e := range dynamic {
		if _, ok := keys[e.Key]; ok {
			continue
		}
		keys[e.Key] = struct{}{}
		if c, ok := newCorrection(e); ok {
			out = append(out, c)
		}
	}
	return out
}

func compileAll(patterns []string, prefix string, logger zerolog.Logger) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(prefix + p)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", p).Msg("skipping invalid music pattern")
			continue
		}
		out = append(out, re)
	}
	return out
}

package dictionary

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Table names the collections of the backing document.
type Table string

const (
	TableProfanity     Table = "profanity"
	TableSensitive     Table = "sensitive"
	TableProperNouns   Table = "proper_nouns"
	TableGovernment    Table = "government_dict"
	TableAbbreviations Table = "abbreviations"
	TableHallucination Table = "hallucination"
)

// Entry is one ordered key → value correction.
type Entry struct {
	Key   string `json:"key" toml:"key"`
	Value string `json:"value" toml:"value"`
}

// SensitiveRule masks a personal identifier with a bracketed label.
type SensitiveRule struct {
	Pattern string `json:"pattern" toml:"pattern"`
	Label   string `json:"label" toml:"label"`
}

// SubtitleRules are the display preferences stored next to the dynamic tables.
type SubtitleRules struct {
	MaxLines              int  `json:"max_lines"`
	MaxCharsPerLine       int  `json:"max_chars_per_line"`
	FadeTimeoutMs         int  `json:"fade_timeout_ms"`
	DisplayDelayMs        int  `json:"display_delay_ms"`
	MinDisplayMs          int  `json:"min_display_ms"`
	BreakOnSentenceEnd    bool `json:"break_on_sentence_end"`
	PostprocessingEnabled bool `json:"postprocessing_enabled"`
}

// DefaultSubtitleRules returns the rules used when the backing file has none.
func DefaultSubtitleRules() SubtitleRules {
	return SubtitleRules{
		MaxLines:              2,
		MaxCharsPerLine:       18,
		FadeTimeoutMs:         3000,
		DisplayDelayMs:        0,
		MinDisplayMs:          1000,
		BreakOnSentenceEnd:    true,
		PostprocessingEnabled: true,
	}
}

// Document is the JSON backing file edited through the admin API.
type Document struct {
	Profanity      []string        `json:"profanity"`
	Sensitive      []SensitiveRule `json:"sensitive"`
	ProperNouns    []Entry         `json:"proper_nouns"`
	GovernmentDict []Entry         `json:"government_dict"`
	Abbreviations  []Entry         `json:"abbreviations"`
	Hallucination  []string        `json:"hallucination"`
	SubtitleRules  SubtitleRules   `json:"subtitle_rules"`
}

// NewDocument returns an empty document with default subtitle rules.
func NewDocument() *Document {
	return &Document{
		Profanity:      []string{},
		Sensitive:      []SensitiveRule{},
		ProperNouns:    []Entry{},
		GovernmentDict: []Entry{},
		Abbreviations:  []Entry{},
		Hallucination:  []string{},
		SubtitleRules:  DefaultSubtitleRules(),
	}
}

// ParseDocument decodes a backing file. Missing rule fields keep their defaults.
func ParseDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode dictionary document: %w", err)
	}
	return doc, nil
}

// Patterns returns the list table named by t.
func (d *Document) Patterns(t Table) (*[]string, bool) {
	switch t {
	case TableProfanity:
		return &d.Profanity, true
	case TableHallucination:
		return &d.Hallucination, true
	}
	return nil, false
}

// Entries returns the pair table named by t.
func (d *Document) Entries(t Table) (*[]Entry, bool) {
	switch t {
	case TableProperNouns:
		return &d.ProperNouns, true
	case TableGovernment:
		return &d.GovernmentDict, true
	case TableAbbreviations:
		return &d.Abbreviations, true
	}
	return nil, false
}

// NumericRule rewrites a spoken amount. When Multiplier is set the first
// capture group is multiplied and formatted with thousands separators.
type NumericRule struct {
	Pattern    string `toml:"pattern"`
	Replace    string `toml:"replace"`
	Multiplier int64  `toml:"multiplier"`
	Suffix     string `toml:"suffix"`
}

// CueRule inserts a line break at a phrase boundary.
type CueRule struct {
	Pattern string `toml:"pattern"`
	Replace string `toml:"replace"`
}

type MusicTables struct {
	Notation []string `toml:"notation"`
	Lyrics   []string `toml:"lyrics"`
	Anthem   []string `toml:"anthem"`
}

// Defaults are the built-in tables shipped with the binary.
type Defaults struct {
	Hallucination []string        `toml:"hallucination"`
	Profanity     []string        `toml:"profanity"`
	Sensitive     []SensitiveRule `toml:"sensitive"`
	Government    []Entry         `toml:"government"`
	ProperNouns   []Entry         `toml:"proper_nouns"`
	Abbreviations []Entry         `toml:"abbreviations"`
	Numeric       []NumericRule   `toml:"numeric"`
	Music         MusicTables     `toml:"music"`
	SpeakerCues   []CueRule       `toml:"speaker_cues"`
}

//go:embed defaults.toml
var defaultsTOML []byte

// LoadDefaults decodes the embedded default tables.
func LoadDefaults() (*Defaults, error) {
	return ParseDefaults(defaultsTOML)
}

// ParseDefaults decodes default tables from TOML.
func ParseDefaults(data []byte) (*Defaults, error) {
	var d Defaults
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse default tables: %w", err)
	}
	return &d, nil
}

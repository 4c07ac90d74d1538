package dictionary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/observability/logging"
)

var (
	ErrEntryExists    = errors.New("entry already exists")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrUnknownTable   = errors.New("unknown dictionary table")
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrEmptyKey       = errors.New("empty key")
)

// Editor mutates the backing file on behalf of the admin API. Writes are
// serialized through a file lock and land via rename, so a concurrent Store
// reload never observes a partial document.
type Editor struct {
	path   string
	lock   *flock.Flock
	store  *Store
	logger zerolog.Logger
}

// NewEditor returns an editor for the store's backing file.
func NewEditor(store *Store) *Editor {
	return &Editor{
		path:   store.Path(),
		lock:   flock.New(store.Path() + ".lock"),
		store:  store,
		logger: logging.WithComponent("dictionary-editor"),
	}
}

// Document returns the current contents of the backing file.
func (e *Editor) Document() (*Document, error) {
	doc, _, err := readDocument(e.path)
	return doc, err
}

// Patterns lists a pattern table of the backing file.
func (e *Editor) Patterns(t Table) ([]string, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, err
	}
	list, ok := doc.Patterns(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, t)
	}
	return *list, nil
}

// Entries lists a key/value table of the backing file.
func (e *Editor) Entries(t Table) ([]Entry, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, err
	}
	list, ok := doc.Entries(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, t)
	}
	return *list, nil
}

// AddPattern appends a profanity literal or hallucination regex and returns
// the new table size.
func (e *Editor) AddPattern(t Table, pattern string) (int, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return 0, ErrEmptyKey
	}
	if t == TableHallucination {
		if _, err := regexp.Compile("(?i)^(?:" + pattern + ")"); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	var total int
	err := e.update(func(doc *Document) error {
		list, ok := doc.Patterns(t)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, t)
		}
		for _, p := range *list {
			if p == pattern {
				return ErrEntryExists
			}
		}
		*list = append(*list, pattern)
		total = len(*list)
		return nil
	})
	if err == nil {
		e.logger.Info().Str("table", string(t)).Str("pattern", pattern).Msg("pattern added")
	}
	return total, err
}

// DeletePattern removes a pattern and returns the new table size.
func (e *Editor) DeletePattern(t Table, pattern string) (int, error) {
	var total int
	err := e.update(func(doc *Document) error {
		list, ok := doc.Patterns(t)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, t)
		}
		for i, p := range *list {
			if p == pattern {
				*list = append((*list)[:i], (*list)[i+1:]...)
				total = len(*list)
				return nil
			}
		}
		return ErrEntryNotFound
	})
	if err == nil {
		e.logger.Info().Str("table", string(t)).Str("pattern", pattern).Msg("pattern deleted")
	}
	return total, err
}

// AddEntry appends a correction pair and returns the new table size.
func (e *Editor) AddEntry(t Table, entry Entry) (int, error) {
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return 0, ErrEmptyKey
	}
	var total int
	err := e.update(func(doc *Document) error {
		list, ok := doc.Entries(t)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, t)
		}
		for _, existing := range *list {
			if existing.Key == entry.Key {
				return ErrEntryExists
			}
		}
		*list = append(*list, entry)
		total = len(*list)
		return nil
	})
	if err == nil {
		e.logger.Info().Str("table", string(t)).Str("key", entry.Key).Str("value", entry.Value).Msg("entry added")
	}
	return total, err
}

// DeleteEntry removes the pair with the given key.
func (e *Editor) DeleteEntry(t Table, key string) (int, error) {
	var total int
	err := e.update(func(doc *Document) error {
		list, ok := doc.Entries(t)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTable, t)
		}
		for i, existing := range *list {
			if existing.Key == key {
				*list = append((*list)[:i], (*list)[i+1:]...)
				total = len(*list)
				return nil
			}
		}
		return ErrEntryNotFound
	})
	if err == nil {
		e.logger.Info().Str("table", string(t)).Str("key", key).Msg("entry deleted")
	}
	return total, err
}

// SaveRules replaces the subtitle rules.
func (e *Editor) SaveRules(rules SubtitleRules) error {
	return e.update(func(doc *Document) error {
		doc.SubtitleRules = rules
		return nil
	})
}

// ResetRules restores the default subtitle rules and returns them.
func (e *Editor) ResetRules() (SubtitleRules, error) {
	rules := DefaultSubtitleRules()
	return rules, e.SaveRules(rules)
}

func (e *Editor) update(fn func(*Document) error) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create dictionary directory: %w", err)
	}
	if err := e.lock.Lock(); err != nil {
		return fmt.Errorf("lock dictionary: %w", err)
	}
	defer e.lock.Unlock()

	doc, _, err := readDocument(e.path)
	if err != nil {
		// Refuse to overwrite a file we could not parse.
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dictionary document: %w", err)
	}
	if err := writeFileAtomic(e.path, data, 0o644); err != nil {
		return err
	}
	e.store.Reload()
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dictionary-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

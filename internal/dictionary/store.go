// Package dictionary holds the correction tables used by the postprocessing
// pipeline: built-in defaults merged with a user-editable JSON backing file
// that is reloaded whenever its modification time changes.
package dictionary

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
)

// Store serves the current Snapshot. Readers always see either the previous
// or the fully rebuilt snapshot.
type Store struct {
	path     string
	defaults *Defaults
	logger   zerolog.Logger

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// NewStore creates a store backed by the file at path using the embedded
// default tables. The file is read lazily on first use.
func NewStore(path string) (*Store, error) {
	d, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDefaults(path, d), nil
}

// NewStoreWithDefaults creates a store with explicit default tables.
func NewStoreWithDefaults(path string, d *Defaults) *Store {
	return &Store{
		path:     path,
		defaults: d,
		logger:   logging.WithComponent("dictionary"),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current tables, reloading first if the backing file
// changed since the last load.
func (s *Store) Snapshot() *Snapshot {
	s.maybeReload()
	return s.current.Load()
}

// Reload rebuilds the snapshot unconditionally.
func (s *Store) Reload() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	mod, size := s.stat()
	snap := s.load(mod, size)
	s.current.Store(snap)
	return snap
}

func (s *Store) maybeReload() {
	mod, size := s.stat()
	if s.fresh(mod, size) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fresh(mod, size) {
		return
	}
	s.current.Store(s.load(mod, size))
}

func (s *Store) fresh(mod time.Time, size int64) bool {
	snap := s.current.Load()
	return snap != nil && snap.ModTime.Equal(mod) && snap.size == size
}

func (s *Store) stat() (time.Time, int64) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

func (s *Store) load(mod time.Time, size int64) *Snapshot {
	doc, status, err := readDocument(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("dictionary file unusable, using built-in tables")
	}
	metrics.DefaultMetrics.RecordDictionaryReload(status)

	snap := build(s.defaults, doc, s.logger)
	snap.ModTime = mod
	snap.size = size

	s.logger.Info().
		Str("path", s.path).
		Str("status", status).
		Int("hallucination", len(snap.Hallucination)).
		Int("profanity", len(snap.Profanity)).
		Int("properNouns", len(snap.ProperNouns)).
		Int("government", len(snap.Government)).
		Int("abbreviations", len(snap.Abbreviations)).
		Msg("dictionary snapshot loaded")
	return snap
}

// readDocument loads the backing file. A missing or corrupt file yields an
// empty document with default rules.
func readDocument(path string) (*Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewDocument(), "missing", nil
		}
		return NewDocument(), "invalid", fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return NewDocument(), "invalid", err
	}
	return doc, "ok", nil
}

package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	"ktv-subtitle-service/internal/models"
)

// Memory keeps the archive in process memory. Contents are lost on restart.
type Memory struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	subtitles map[string][]models.Subtitle
}

func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]*Session),
		subtitles: make(map[string][]models.Subtitle),
	}
}

func (m *Memory) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.State == "" {
		s.State = "active"
	}
	m.sessions[s.ID] = &s
	return nil
}

func (m *Memory) AppendSubtitle(_ context.Context, sessionID string, sub models.Subtitle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	m.subtitles[sessionID] = append(m.subtitles[sessionID], sub)
	s.Subtitles++
	return nil
}

func (m *Memory) FinishSession(_ context.Context, sessionID, state string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.State = state
	s.EndedAt = &endedAt
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) Subtitles(_ context.Context, sessionID string) ([]models.Subtitle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	out := append([]models.Subtitle(nil), m.subtitles[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Sessions(_ context.Context, limit int) ([]Session, error) {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

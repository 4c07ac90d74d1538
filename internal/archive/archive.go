// Package archive persists sessions and their final subtitles so they can be
// exported after the stream ended.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ktv-subtitle-service/internal/models"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("archive: session not found")

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Session is the archived description of one streaming session.
type Session struct {
	ID        string     `json:"id"`
	Engine    string     `json:"engine"`
	Source    string     `json:"source,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// State is active until the session ends, then closed, failed or
	// cancelled.
	State     string `json:"state"`
	Subtitles int    `json:"subtitles"`
}

// Store is implemented by every archive driver.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	AppendSubtitle(ctx context.Context, sessionID string, sub models.Subtitle) error
	FinishSession(ctx context.Context, sessionID, state string, endedAt time.Time) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// Subtitles returns the archived subtitles ordered by id.
	Subtitles(ctx context.Context, sessionID string) ([]models.Subtitle, error)
	// Sessions returns the most recent sessions first.
	Sessions(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// Open connects to the archive selected by driver and applies migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres, "postgresql":
		return OpenPostgres(ctx, dsn)
	case DriverSQLite, "sqlite3":
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}

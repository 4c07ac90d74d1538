package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ktv-subtitle-service/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite archives into a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "archive.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (s *SQLite) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (s *SQLite) CreateSession(ctx context.Context, rec Session) error {
	if rec.State == "" {
		rec.State = "active"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subtitle_sessions (id, engine, source, started_at, state) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Engine, rec.Source, rec.StartedAt.UTC().Format(timeLayout), rec.State)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLite) AppendSubtitle(ctx context.Context, sessionID string, sub models.Subtitle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subtitles (session_id, subtitle_id, start_time, end_time, text, speaker, emitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, sub.ID, sub.StartTime, sub.EndTime, sub.Text, nullableString(sub.Speaker), sub.Timestamp)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return ErrNotFound
		}
		return fmt.Errorf("insert subtitle: %w", err)
	}
	return nil
}

func (s *SQLite) FinishSession(ctx context.Context, sessionID, state string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subtitle_sessions SET state = ?, ended_at = ? WHERE id = ?`,
		state, endedAt.UTC().Format(timeLayout), sessionID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const sessionColumns = `s.id, s.engine, s.source, s.started_at, s.ended_at, s.state,
	(SELECT COUNT(1) FROM subtitles t WHERE t.session_id = s.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		rec     Session
		started string
		ended   sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Engine, &rec.Source, &started, &ended, &rec.State, &rec.Subtitles); err != nil {
		return Session{}, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	rec.StartedAt = t
	if ended.Valid {
		t, err := time.Parse(timeLayout, ended.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		rec.EndedAt = &t
	}
	return rec, nil
}

func (s *SQLite) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM subtitle_sessions s WHERE s.id = ?`, sessionID)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) Subtitles(ctx context.Context, sessionID string) ([]models.Subtitle, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subtitle_id, start_time, end_time, text, speaker, emitted_at
		 FROM subtitles WHERE session_id = ? ORDER BY subtitle_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	defer rows.Close()

	var list []models.Subtitle
	for rows.Next() {
		sub := models.Subtitle{IsFinal: true}
		var speaker sql.NullString
		if err := rows.Scan(&sub.ID, &sub.StartTime, &sub.EndTime, &sub.Text, &speaker, &sub.Timestamp); err != nil {
			return nil, fmt.Errorf("scan subtitle: %w", err)
		}
		if speaker.Valid {
			sub.Speaker = models.StringPtr(speaker.String)
		}
		list = append(list, sub)
	}
	return list, rows.Err()
}

func (s *SQLite) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM subtitle_sessions s ORDER BY s.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var list []Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

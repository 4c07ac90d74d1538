package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ktv-subtitle-service/internal/models"
)

const databaseInitTimeout = 15 * time.Second

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS subtitle_sessions (
		id TEXT PRIMARY KEY,
		engine TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		state TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subtitle_sessions_started ON subtitle_sessions (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS subtitles (
		session_id TEXT NOT NULL REFERENCES subtitle_sessions(id) ON DELETE CASCADE,
		subtitle_id BIGINT NOT NULL,
		start_time DOUBLE PRECISION NOT NULL,
		end_time DOUBLE PRECISION NOT NULL,
		text TEXT NOT NULL,
		speaker TEXT,
		emitted_at DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (session_id, subtitle_id)
	)`,
}

// Postgres archives into PostgreSQL through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres archive: empty DSN")
	}
	ctx, cancel := context.WithTimeout(ctx, databaseInitTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}
	if err := runPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate archive database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func runPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range postgresMigrations {
		if _, err := pool.Exec(ctx, strings.TrimSpace(s)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, s Session) error {
	if s.State == "" {
		s.State = "active"
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO subtitle_sessions (id, engine, source, started_at, state)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.Engine, s.Source, s.StartedAt, s.State)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *Postgres) AppendSubtitle(ctx context.Context, sessionID string, sub models.Subtitle) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO subtitles (session_id, subtitle_id, start_time, end_time, text, speaker, emitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, subtitle_id) DO NOTHING`,
		sessionID, sub.ID, sub.StartTime, sub.EndTime, sub.Text, sub.Speaker, sub.Timestamp)
	if err != nil {
		return fmt.Errorf("insert subtitle: %w", err)
	}
	return nil
}

func (p *Postgres) FinishSession(ctx context.Context, sessionID, state string, endedAt time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE subtitle_sessions SET state = $2, ended_at = $3 WHERE id = $1`,
		sessionID, state, endedAt)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT s.id, s.engine, s.source, s.started_at, s.ended_at, s.state,
		        (SELECT COUNT(*) FROM subtitles t WHERE t.session_id = s.id)
		 FROM subtitle_sessions s WHERE s.id = $1`,
		sessionID)
	var s Session
	if err := row.Scan(&s.ID, &s.Engine, &s.Source, &s.StartedAt, &s.EndedAt, &s.State, &s.Subtitles); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (p *Postgres) Subtitles(ctx context.Context, sessionID string) ([]models.Subtitle, error) {
	if _, err := p.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT subtitle_id, start_time, end_time, text, speaker, emitted_at
		 FROM subtitles WHERE session_id = $1 ORDER BY subtitle_id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	defer rows.Close()

	var list []models.Subtitle
	for rows.Next() {
		sub := models.Subtitle{IsFinal: true}
		if err := rows.Scan(&sub.ID, &sub.StartTime, &sub.EndTime, &sub.Text, &sub.Speaker, &sub.Timestamp); err != nil {
			return nil, fmt.Errorf("scan subtitle: %w", err)
		}
		list = append(list, sub)
	}
	return list, rows.Err()
}

func (p *Postgres) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT s.id, s.engine, s.source, s.started_at, s.ended_at, s.state,
		        (SELECT COUNT(*) FROM subtitles t WHERE t.session_id = s.id)
		 FROM subtitle_sessions s ORDER BY s.started_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var list []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Engine, &s.Source, &s.StartedAt, &s.EndedAt, &s.State, &s.Subtitles); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

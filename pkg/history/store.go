// Package history persists finished sessions and their transcripts in
// a local SQLite database so past sessions can be reviewed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/oratio-ai/oratio/pkg/live"
	"github.com/oratio-ai/oratio/pkg/report"
)

// Store is a read-write SQLite session archive.
type Store struct {
	db *sql.DB
}

// Record is one archived session row.
type Record struct {
	ID             string
	Role           string
	Difficulty     string
	DurationSec    int64
	CompositeScore int
	Summary        string
	StartedAt      time.Time
	EndedAt        time.Time
}

// DefaultDBPath returns the default database location under the user's
// home directory.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".oratio", "history.sqlite")
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	role            TEXT NOT NULL,
	difficulty      TEXT NOT NULL,
	duration_sec    INTEGER NOT NULL,
	composite_score INTEGER NOT NULL,
	summary         TEXT NOT NULL,
	started_at      INTEGER NOT NULL,
	ended_at        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS transcript_items (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx        INTEGER NOT NULL,
	speaker    TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_session ON transcript_items(session_id, idx);
`

// Open opens (creating if needed) the archive at path with WAL enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives one finished session with its transcript. Returns the
// generated session id.
func (s *Store) Save(ctx context.Context, cfg live.SessionConfig, transcript []live.TranscriptItem, rep *report.Report, startedAt, endedAt time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	composite := 0
	summary := ""
	if rep != nil {
		composite = rep.Composite
		summary = rep.Summary
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, role, difficulty, duration_sec, composite_score, summary, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.Role, cfg.Difficulty, int64(endedAt.Sub(startedAt).Seconds()),
		composite, summary, startedAt.Unix(), endedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	for i, it := range transcript {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcript_items (id, session_id, idx, speaker, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			it.ID, id, i, string(it.Speaker), it.Text, it.CreatedAt.Unix())
		if err != nil {
			return "", fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// List returns archived sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, difficulty, duration_sec, composite_score, summary, started_at, ended_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.Role, &r.Difficulty, &r.DurationSec,
			&r.CompositeScore, &r.Summary, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.EndedAt = time.Unix(ended, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items returns the transcript of one archived session in order.
func (s *Store) Items(ctx context.Context, sessionID string) ([]live.TranscriptItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, speaker, text, created_at
		FROM transcript_items
		WHERE session_id = ?
		ORDER BY idx ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []live.TranscriptItem
	for rows.Next() {
		var it live.TranscriptItem
		var speaker string
		var created int64
		if err := rows.Scan(&it.ID, &speaker, &it.Text, &created); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Speaker = live.Speaker(speaker)
		it.CreatedAt = time.Unix(created, 0)
		out = append(out, it)
	}
	return out, rows.Err()
}

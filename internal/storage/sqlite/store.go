// Package sqlite provides a SQLite-backed audit record store. It is the
// default backend: zero external infrastructure, one file on disk.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"siteaudit/internal/audit"
)

// Store implements audit.RecordStore on a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file and ensures the schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS audit_records (
	id                  TEXT PRIMARY KEY,
	url                 TEXT NOT NULL,
	seo_score           INTEGER NOT NULL,
	security_score      INTEGER NOT NULL,
	performance_score   INTEGER NOT NULL,
	accessibility_score INTEGER NOT NULL,
	issues              TEXT NOT NULL,
	response_time_ms    INTEGER NOT NULL,
	cached              INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_created_at ON audit_records (created_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append inserts one record. Records are never updated or deleted.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	issuesJSON, err := json.Marshal(issuesOrEmpty(rec.Issues))
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	query := `
INSERT INTO audit_records (
	id, url, seo_score, security_score, performance_score, accessibility_score,
	issues, response_time_ms, cached, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.URL,
		rec.Scores.SEO,
		rec.Scores.Security,
		rec.Scores.Performance,
		rec.Scores.Accessibility,
		string(issuesJSON),
		rec.ResponseTimeMs,
		boolToInt(rec.Cached),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, url, seo_score, security_score, performance_score, accessibility_score,
       issues, response_time_ms, cached, created_at
FROM audit_records
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec        audit.Record
			issuesJSON string
			cached     int
			createdAt  string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.URL,
			&rec.Scores.SEO,
			&rec.Scores.Security,
			&rec.Scores.Performance,
			&rec.Scores.Accessibility,
			&issuesJSON,
			&rec.ResponseTimeMs,
			&cached,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(issuesJSON), &rec.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
		rec.Cached = cached != 0
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		rec.CreatedAt = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func issuesOrEmpty(issues []audit.Issue) []audit.Issue {
	if issues == nil {
		return []audit.Issue{}
	}
	return issues
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

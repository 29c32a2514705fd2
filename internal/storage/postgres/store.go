// Package postgres provides a Postgres-backed audit record store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"siteaudit/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements audit.RecordStore on a pgx pool.
type Store struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the audit table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "audit_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, table: table}
	if err := s.migrate(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return s, nil
}

// NewWithPool constructs a Store from an existing pool, primarily for
// testing. No migration is run.
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "audit_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id                  TEXT PRIMARY KEY,
	url                 TEXT NOT NULL,
	seo_score           INTEGER NOT NULL,
	security_score      INTEGER NOT NULL,
	performance_score   INTEGER NOT NULL,
	accessibility_score INTEGER NOT NULL,
	issues              JSONB NOT NULL,
	response_time_ms    BIGINT NOT NULL,
	cached              BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at DESC)`, s.table, s.table, s.table)
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Append inserts one record. Records are never updated or deleted.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	issuesJSON, err := json.Marshal(issuesOrEmpty(rec.Issues))
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, url, seo_score, security_score, performance_score, accessibility_score,
	issues, response_time_ms, cached, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, s.table)

	args := []any{
		rec.ID,
		rec.URL,
		rec.Scores.SEO,
		rec.Scores.Security,
		rec.Scores.Performance,
		rec.Scores.Accessibility,
		issuesJSON,
		rec.ResponseTimeMs,
		rec.Cached,
		rec.CreatedAt.UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("record store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, url, seo_score, security_score, performance_score, accessibility_score,
       issues, response_time_ms, cached, created_at
FROM %s
ORDER BY created_at DESC, id DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec        audit.Record
			issuesJSON []byte
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
			&rec.Cached,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal(issuesJSON, &rec.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
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

// Package memory provides an in-memory audit record store for development
// and tests.
package memory

import (
	"context"
	"sync"

	"siteaudit/internal/audit"
)

// Store implements audit.RecordStore over a slice. Append-only, like its
// durable counterparts.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

// New constructs a Store.
func New() *Store {
	return &Store{}
}

// Append adds one record.
func (s *Store) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Issues = append([]audit.Issue(nil), rec.Issues...)
	s.records = append(s.records, rec)
	return nil
}

// ListRecent returns up to limit records, newest-first by append order.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]audit.Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

package audit

import (
	"context"
	"net/http"
	"time"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Limiter bounds request volume per client identity. Allow never fails; it
// reports whether this request may proceed.
type Limiter interface {
	Allow(identity string) bool
}

// Guard decides whether a target URL may be fetched at all. It runs before
// any network call is made.
type Guard interface {
	IsBlocked(raw string) bool
}

// Fetcher performs one outbound GET with redirect following and a hard
// timeout. Every failure wraps ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (FetchResult, error)
}

// Scorer turns fetched content into scores and an ordered issue list. It
// must be pure: identical input yields identical output.
type Scorer interface {
	Score(html string, headers http.Header, elapsedMs int64) (Scores, []Issue)
}

// Cache is a key-value store with per-entry TTL, used cache-aside in front
// of the fetch+score path.
type Cache interface {
	Get(key string) (Result, bool)
	Put(key string, result Result, ttl time.Duration)
}

// RecordStore persists audit records append-only. ListRecent returns
// newest-first rows for the admin listing.
type RecordStore interface {
	Append(ctx context.Context, rec Record) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// IDGenerator mints record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Package ratelimit implements a fixed-window request limiter keyed by
// client identity.
package ratelimit

import (
	"sync"
	"time"

	"siteaudit/internal/audit"
)

// Config holds limiter settings.
type Config struct {
	// MaxRequests is the number of requests admitted per window. The Nth
	// request is still allowed; the N+1st is rejected.
	MaxRequests int
	// Window is the fixed window length.
	Window time.Duration
}

type window struct {
	count int
	start time.Time
}

// Limiter counts requests per identity over a fixed window. Fixed, not
// sliding: a client can burst up to 2x MaxRequests across a window
// boundary, which is acceptable for abuse mitigation.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	length  time.Duration
	clock   audit.Clock
}

// New constructs a Limiter with an injected clock.
func New(cfg Config, clock audit.Clock) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		windows: make(map[string]*window),
		max:     cfg.MaxRequests,
		length:  cfg.Window,
		clock:   clock,
	}
}

// Allow records one request for identity and reports whether it may
// proceed. First sight of an identity, or an elapsed window, resets the
// count to 1; stale entries are overwritten on that reset rather than
// being swept.
func (l *Limiter) Allow(identity string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || now.Sub(w.start) > l.length {
		l.windows[identity] = &window{count: 1, start: now}
		return true
	}
	w.count++
	return w.count <= l.max
}

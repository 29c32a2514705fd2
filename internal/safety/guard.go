// Package safety blocks audit targets that point at loopback or private
// network space, so the service cannot be used as an SSRF proxy.
package safety

import (
	"net/url"
	"strings"
)

// Guard matches hostnames against exact entries, suffixes, and prefixes.
// Checks are string-based on the literal URL, before any DNS resolution:
// cheap, and no lookup round-trip before validation. The tradeoff is that
// DNS rebinding and IPv6 private ranges are not caught here.
type Guard struct {
	exact    map[string]struct{}
	suffixes []string
	prefixes []string
}

// NewGuard builds a Guard with the default private-space rules. The "172."
// prefix is intentionally coarse: it blocks the whole 172.0.0.0/8 rather
// than just 172.16.0.0/12. An approximation, not a CIDR check.
func NewGuard() *Guard {
	return &Guard{
		exact: map[string]struct{}{
			"localhost": {},
			"127.0.0.1": {},
		},
		suffixes: []string{".local"},
		prefixes: []string{"10.", "192.168.", "172."},
	}
}

// IsBlocked reports whether the URL must not be fetched. Anything that does
// not parse, or parses without a hostname, is blocked (fail closed).
func (g *Guard) IsBlocked(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return true
	}
	if _, ok := g.exact[host]; ok {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

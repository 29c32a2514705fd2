package audit

import "errors"

// Terminal pipeline outcomes. Each maps to exactly one HTTP status in the
// API layer; none are retried internally.
var (
	// ErrRateLimited means the client identity exhausted its request window.
	ErrRateLimited = errors.New("too many requests")

	// ErrInvalidInput means the request body or target URL was malformed.
	ErrInvalidInput = errors.New("invalid URL")

	// ErrUnsafeTarget means the URL points at loopback or private network space.
	ErrUnsafeTarget = errors.New("blocked URL")

	// ErrFetchFailed collapses every network-level failure (timeout, DNS,
	// connection, TLS) into one outcome so internal topology never leaks.
	ErrFetchFailed = errors.New("failed to fetch website")

	// ErrUnauthorized is returned by the admin listing on a bad bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

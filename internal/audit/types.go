// Package audit defines the domain types and the request pipeline for
// scoring a single website URL.
package audit

import (
	"net/http"
	"time"
)

// IssueType categorizes a single audit finding.
type IssueType string

// Issue categories, in the order the scorers evaluate them.
const (
	IssueSEO           IssueType = "SEO"
	IssueSecurity      IssueType = "Security"
	IssuePerformance   IssueType = "Performance"
	IssueAccessibility IssueType = "Accessibility"
)

// Issue is one finding produced by a scorer. Issues are immutable once
// created and keep their append order in the response.
type Issue struct {
	Type    IssueType `json:"type"`
	Message string    `json:"message"`
}

// Scores holds the four heuristic scores, each in [0, 100].
type Scores struct {
	SEO           int `json:"seo"`
	Security      int `json:"security"`
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
}

// Meta carries fetch metadata echoed back to the caller.
type Meta struct {
	Status         int   `json:"status"`
	HTMLSizeKb     int   `json:"htmlSizeKb"`
	ResponseTimeMs int64 `json:"responseTimeMs"`
}

// Result is a complete audit outcome. Cached is recomputed per response and
// is never part of the stored record.
type Result struct {
	Scores Scores  `json:"scores"`
	Issues []Issue `json:"issues"`
	Meta   Meta    `json:"meta"`
	Cached bool    `json:"cached"`
}

// FetchResult is the raw outcome of one outbound GET. It only lives long
// enough to be scored and is never persisted.
type FetchResult struct {
	StatusCode int
	Headers    http.Header
	Body       string
	ElapsedMs  int64
}

// Record is the durable, append-only row written for every non-cached audit.
type Record struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Scores         Scores    `json:"scores"`
	Issues         []Issue   `json:"issues"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"createdAt"`
}

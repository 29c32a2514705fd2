// Package scoring turns fetched page content into heuristic scores.
//
// Detection is substring and regex matching over the raw markup, not a DOM
// parse. That trades accuracy on malformed markup for speed and output
// stability; the exact rules below are part of the service contract and
// must not drift.
package scoring

import (
	"net/http"
	"regexp"
	"strings"

	"siteaudit/internal/audit"
)

// Fixed thresholds for the performance scorer.
const (
	slowResponseMs = 2000
	maxScriptTags  = 10
	maxStylesheets = 5
	maxMarkupBytes = 500 * 1024
)

var (
	imgTagPattern   = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	inputTagPattern = regexp.MustCompile(`(?is)<input\b[^>]*>`)
)

// Engine implements audit.Scorer. It is stateless; one instance serves all
// requests.
type Engine struct{}

// New returns a scoring Engine.
func New() *Engine {
	return &Engine{}
}

// Score evaluates the four categories in a fixed order: SEO, Security,
// Performance, Accessibility. Each category starts at 100 and loses fixed
// penalties; every triggered penalty appends one issue, so the issue order
// always follows evaluation order.
func (e *Engine) Score(html string, headers http.Header, elapsedMs int64) (audit.Scores, []audit.Issue) {
	scores := audit.Scores{SEO: 100, Security: 100, Performance: 100, Accessibility: 100}
	var issues []audit.Issue
	report := func(kind audit.IssueType, message string) {
		issues = append(issues, audit.Issue{Type: kind, Message: message})
	}

	if !strings.Contains(html, "<title>") {
		scores.SEO -= 20
		report(audit.IssueSEO, "Missing <title> tag")
	}
	if !strings.Contains(html, `meta name="description"`) {
		scores.SEO -= 20
		report(audit.IssueSEO, "Missing meta description")
	}

	if headers.Get("Content-Security-Policy") == "" {
		scores.Security -= 25
		report(audit.IssueSecurity, "Missing CSP header")
	}
	if headers.Get("X-Frame-Options") == "" {
		scores.Security -= 25
		report(audit.IssueSecurity, "Missing X-Frame-Options header")
	}

	// Performance penalties are independent and can all apply at once.
	if elapsedMs > slowResponseMs {
		scores.Performance -= 30
		report(audit.IssuePerformance, "Slow response time")
	}
	if strings.Count(html, "<script") > maxScriptTags {
		scores.Performance -= 20
		report(audit.IssuePerformance, "Too many script tags")
	}
	if strings.Count(html, `<link rel="stylesheet"`) > maxStylesheets {
		scores.Performance -= 15
		report(audit.IssuePerformance, "Too many stylesheet links")
	}
	if len(html) > maxMarkupBytes {
		scores.Performance -= 20
		report(audit.IssuePerformance, "Page size exceeds 500 KiB")
	}

	if !(strings.Contains(html, "<html") && strings.Contains(html, "lang=")) {
		scores.Accessibility -= 20
		report(audit.IssueAccessibility, "Missing lang attribute on <html>")
	}
	if anyTagMissing(imgTagPattern, html, "alt") {
		scores.Accessibility -= 20
		report(audit.IssueAccessibility, "Image missing alt attribute")
	}
	if anyTagMissing(inputTagPattern, html, "aria-label", "aria-labelledby", "id") {
		scores.Accessibility -= 20
		report(audit.IssueAccessibility, "Input missing label association")
	}

	scores.SEO = floor(scores.SEO)
	scores.Security = floor(scores.Security)
	scores.Performance = floor(scores.Performance)
	scores.Accessibility = floor(scores.Accessibility)
	return scores, issues
}

// anyTagMissing reports whether any tag matched by pattern carries none of
// the given attribute names. Attribute presence is a substring check inside
// the tag text, consistent with the rest of the engine.
func anyTagMissing(pattern *regexp.Regexp, html string, attrs ...string) bool {
	for _, tag := range pattern.FindAllString(html, -1) {
		found := false
		for _, attr := range attrs {
			if strings.Contains(tag, attr) {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

func floor(score int) int {
	if score < 0 {
		return 0
	}
	return score
}

// Package collyfetcher implements audit.Fetcher using the Colly collector.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"siteaudit/internal/audit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher issues exactly one GET per Fetch call. Redirects are followed;
// robots.txt is ignored since the target owner asked for the audit. There
// are no retries: a failing origin must not prolong the caller's latency
// budget.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		// A 404 or 500 page is still a scorable page; only transport-level
		// failures count as fetch failures.
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Elapsed time runs from dispatch to
// response arrival and feeds the performance scorer. Every failure mode
// collapses into audit.ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, target string) (audit.FetchResult, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   audit.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = audit.FetchResult{
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       string(r.Body),
			ElapsedMs:  time.Since(start).Milliseconds(),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		// The in-flight request is abandoned; the caller cannot tell a
		// timeout apart from any other network failure.
		return audit.FetchResult{}, fmt.Errorf("%w: %v", audit.ErrFetchFailed, ctx.Err())
	case err := <-done:
		if err != nil {
			return audit.FetchResult{}, fmt.Errorf("%w: %v", audit.ErrFetchFailed, err)
		}
		if fetchErr != nil {
			return audit.FetchResult{}, fmt.Errorf("%w: %v", audit.ErrFetchFailed, fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   8 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   8 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"siteaudit/internal/audit"
	cachememory "siteaudit/internal/cache/memory"
	"siteaudit/internal/clock/system"
	"siteaudit/internal/config"
	"siteaudit/internal/id/uuid"
	"siteaudit/internal/ratelimit"
	"siteaudit/internal/safety"
	"siteaudit/internal/scoring"
	storememory "siteaudit/internal/storage/memory"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	res   audit.FetchResult
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (audit.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return audit.FetchResult{}, f.err
	}
	return f.res, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func barePageFetch() audit.FetchResult {
	return audit.FetchResult{
		StatusCode: http.StatusOK,
		Headers:    http.Header{},
		Body:       "<html><head></head><body></body></html>",
		ElapsedMs:  500,
	}
}

type testEnv struct {
	server  *Server
	fetcher *fakeFetcher
	store   *storememory.Store
}

func newTestEnv(t *testing.T, fetcher *fakeFetcher) *testEnv {
	t.Helper()

	cfg := config.Config{
		Server:    config.ServerConfig{Port: 8080},
		Auth:      config.AuthConfig{AdminToken: "sekret"},
		RateLimit: config.RateLimitConfig{WindowSeconds: 60, MaxRequests: 10},
		Fetch:     config.FetchConfig{TimeoutSeconds: 8},
		Cache:     config.CacheConfig{TTLSeconds: 600},
		Storage:   config.StorageConfig{Provider: "memory"},
		Admin:     config.AdminConfig{ListLimit: 50},
	}
	clock := system.New()
	store := storememory.New()
	svc := audit.NewService(
		safety.NewGuard(),
		fetcher,
		scoring.New(),
		cachememory.New(clock),
		store,
		uuid.New(),
		clock,
		audit.ServiceConfig{CacheTTL: cfg.CacheTTL()},
		zap.NewNop(),
	)
	limiter := ratelimit.New(
		ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateWindow()},
		clock,
	)
	return &testEnv{
		server:  NewServer(svc, limiter, store, cfg, zap.NewNop()),
		fetcher: fetcher,
		store:   store,
	}
}

func (e *testEnv) post(identity, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/audit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", identity)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) audit.Result {
	t.Helper()
	var res audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestAuditPreflight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	req := httptest.NewRequest(http.MethodOptions, "/api/audit", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Body.String())
}

func TestAuditRejectsNonPost(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuditInvalidJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	rec := env.post("1.1.1.1", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")
}

func TestAuditInvalidURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	for _, body := range []string{`{}`, `{"url":""}`, `{"url":"ftp://example.com"}`, `{"url":"example.com"}`} {
		rec := env.post("1.1.1.1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
		assert.Contains(t, rec.Body.String(), "Invalid URL", "body %s", body)
	}
	assert.Zero(t, env.fetcher.callCount())
}

func TestAuditBlockedURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	for _, target := range []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080",
		"http://10.0.0.5",
		"http://192.168.1.1",
		"http://172.20.0.1",
		"http://nas.local",
	} {
		rec := env.post("1.1.1.1", `{"url":"`+target+`"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, "target %s", target)
		assert.Contains(t, rec.Body.String(), "Blocked URL", "target %s", target)
	}
	assert.Zero(t, env.fetcher.callCount(), "no outbound fetch may be attempted for blocked targets")
}

func TestAuditSuccessThenCached(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})

	first := env.post("1.1.1.1", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, first.Code)
	firstRes := decodeResult(t, first)

	assert.False(t, firstRes.Cached)
	assert.Equal(t, 60, firstRes.Scores.SEO)
	assert.Equal(t, 50, firstRes.Scores.Security)
	assert.Equal(t, 100, firstRes.Scores.Performance)
	assert.Equal(t, http.StatusOK, firstRes.Meta.Status)
	assert.Equal(t, int64(500), firstRes.Meta.ResponseTimeMs)
	require.GreaterOrEqual(t, len(firstRes.Issues), 4)
	assert.Equal(t, audit.IssueSEO, firstRes.Issues[0].Type)
	assert.Equal(t, audit.IssueSecurity, firstRes.Issues[2].Type)

	// Durable write is fire-and-forget; give it a moment.
	require.Eventually(t, func() bool {
		recs, err := env.store.ListRecent(context.Background(), 50)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	second := env.post("1.1.1.1", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, second.Code)
	secondRes := decodeResult(t, second)

	assert.True(t, secondRes.Cached)
	assert.Equal(t, firstRes.Scores, secondRes.Scores)
	assert.Equal(t, firstRes.Issues, secondRes.Issues)
	assert.Equal(t, 1, env.fetcher.callCount(), "cache hit must short-circuit the fetch")

	// And the hit writes no second record.
	time.Sleep(50 * time.Millisecond)
	recs, err := env.store.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.False(t, recs[0].Cached, "stored records always carry cached=false")
	assert.Equal(t, "https://example.com", recs[0].URL)
}

func TestAuditDistinctURLStringsAreDistinctAudits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	require.Equal(t, http.StatusOK, env.post("1.1.1.1", `{"url":"https://example.com"}`).Code)
	require.Equal(t, http.StatusOK, env.post("1.1.1.1", `{"url":"https://example.com/"}`).Code)
	assert.Equal(t, 2, env.fetcher.callCount(), "trailing slash is a different cache key")
}

func TestAuditFetchFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{err: audit.ErrFetchFailed})
	rec := env.post("1.1.1.1", `{"url":"https://unreachable.example"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to fetch website")

	// No cache entry and no durable record on failure: the next request
	// fetches again.
	env.post("1.1.1.1", `{"url":"https://unreachable.example"}`)
	assert.Equal(t, 2, env.fetcher.callCount())

	time.Sleep(50 * time.Millisecond)
	recs, err := env.store.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAuditRateLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})

	for i := 0; i < 10; i++ {
		rec := env.post("9.9.9.9", `{"url":"https://example.com"}`)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
	rec := env.post("9.9.9.9", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests")

	// Another identity is unaffected.
	other := env.post("8.8.8.8", `{"url":"https://example.com"}`)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestAdminAuditsAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	require.Equal(t, http.StatusOK, env.post("1.1.1.1", `{"url":"https://example.com"}`).Code)
	require.Eventually(t, func() bool {
		recs, err := env.store.ListRecent(context.Background(), 50)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	get := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/audits", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, get("").Code)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer wrong").Code)

	ok := get("Bearer sekret")
	require.Equal(t, http.StatusOK, ok.Code)
	var payload struct {
		Audits []audit.Record `json:"audits"`
	}
	require.NoError(t, json.Unmarshal(ok.Body.Bytes(), &payload))
	require.Len(t, payload.Audits, 1)
	assert.Equal(t, "https://example.com", payload.Audits[0].URL)
}

func TestAdminLockedWhenNoTokenConfigured(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	env.server.cfg.Auth.AdminToken = ""

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audits", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeFetcher{res: barePageFetch()})
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

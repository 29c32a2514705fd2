// Package api exposes the HTTP interface for the audit service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"siteaudit/internal/audit"
	"siteaudit/internal/config"
	"siteaudit/internal/telemetry"
)

// Server wires HTTP handlers to the audit pipeline and the record store.
type Server struct {
	router  chi.Router
	audits  *audit.Service
	limiter audit.Limiter
	store   audit.RecordStore
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	audits *audit.Service,
	limiter audit.Limiter,
	store audit.RecordStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		audits:  audits,
		limiter: limiter,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(corsMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		// Registered for every method: the rate check must run before the
		// method check, so 405 is decided inside the handler.
		r.HandleFunc("/audit", s.handleAudit)
		r.Get("/admin/audits", s.handleAdminAudits)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type auditRequest struct {
	URL string `json:"url"`
}

// handleAudit runs the fixed pipeline order: rate check, method check, body
// parse, then the audit service (validation, safety, cache, fetch, score).
// Every exit produces either a complete result or one structured error.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIdentity(r)) {
		telemetry.ObserveAudit("rate_limited")
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		telemetry.ObserveAudit("invalid_input")
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := s.audits.Run(r.Context(), req.URL)
	if err != nil {
		s.respondAuditError(w, req.URL, err)
		return
	}
	if result.Issues == nil {
		result.Issues = []audit.Issue{}
	}
	outcome := "ok"
	if result.Cached {
		outcome = "cached"
	}
	telemetry.ObserveAudit(outcome)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) respondAuditError(w http.ResponseWriter, target string, err error) {
	switch {
	case errors.Is(err, audit.ErrInvalidInput):
		telemetry.ObserveAudit("invalid_input")
		writeError(w, http.StatusBadRequest, "Invalid URL")
	case errors.Is(err, audit.ErrUnsafeTarget):
		telemetry.ObserveAudit("unsafe_target")
		writeError(w, http.StatusForbidden, "Blocked URL")
	case errors.Is(err, audit.ErrFetchFailed):
		telemetry.ObserveAudit("fetch_failed")
		s.logger.Info("fetch failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch website")
	default:
		telemetry.ObserveAudit("error")
		s.logger.Error("audit failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleAdminAudits is the read-only history listing. It requires the
// configured bearer token; an empty configured token keeps the route locked.
func (s *Server) handleAdminAudits(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if s.cfg.Auth.AdminToken == "" || token != s.cfg.Auth.AdminToken {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	records, err := s.store.ListRecent(r.Context(), s.cfg.Admin.ListLimit)
	if err != nil {
		s.logger.Error("list audit records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audits")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": records})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// clientIdentity picks the rate-limit key: the first X-Forwarded-For hop,
// else the remote address. It is used only for counting, never stored.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "local"
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware stamps every response for the browser widget and answers
// preflight directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

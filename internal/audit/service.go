package audit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"siteaudit/internal/telemetry"
)

const cacheKeyPrefix = "audit:"

// ServiceConfig controls pipeline behavior.
type ServiceConfig struct {
	CacheTTL       time.Duration
	PersistTimeout time.Duration
}

// Service runs the audit pipeline for one validated request: input check,
// safety check, cache read, fetch, score, cache write, durable append.
// Rate limiting and HTTP concerns (method, body, identity) belong to the
// API layer, which runs before this.
type Service struct {
	guard   Guard
	fetcher Fetcher
	scorer  Scorer
	cache   Cache
	store   RecordStore
	idGen   IDGenerator
	clock   Clock
	cfg     ServiceConfig
	logger  *zap.Logger
}

// NewService wires the pipeline collaborators.
func NewService(
	guard Guard,
	fetcher Fetcher,
	scorer Scorer,
	cache Cache,
	store RecordStore,
	idGen IDGenerator,
	clock Clock,
	cfg ServiceConfig,
	logger *zap.Logger,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 600 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		guard:   guard,
		fetcher: fetcher,
		scorer:  scorer,
		cache:   cache,
		store:   store,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run audits one target URL. A cache hit short-circuits the fetch, the
// scorers, and the durable write entirely.
func (s *Service) Run(ctx context.Context, target string) (Result, error) {
	if target == "" || !strings.HasPrefix(target, "http") {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidInput, target)
	}
	if s.guard.IsBlocked(target) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsafeTarget, target)
	}

	// Cache key is the exact target string, deliberately unnormalized:
	// http://x.com and http://x.com/ are distinct audits.
	key := cacheKeyPrefix + target
	if hit, ok := s.cache.Get(key); ok {
		telemetry.ObserveCacheLookup(true)
		hit.Cached = true
		return hit, nil
	}
	telemetry.ObserveCacheLookup(false)

	fetched, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return Result{}, err
	}
	telemetry.ObserveFetch(time.Duration(fetched.ElapsedMs) * time.Millisecond)

	scores, issues := s.scorer.Score(fetched.Body, fetched.Headers, fetched.ElapsedMs)
	result := Result{
		Scores: scores,
		Issues: issues,
		Meta: Meta{
			Status:         fetched.StatusCode,
			HTMLSizeKb:     int(math.Round(float64(len(fetched.Body)) / 1024)),
			ResponseTimeMs: fetched.ElapsedMs,
		},
		Cached: false,
	}

	// The cache write is synchronous so an immediate re-request observes the
	// entry; the durable append is fire-and-forget and must never delay or
	// fail the response.
	s.cache.Put(key, result, s.cfg.CacheTTL)
	s.persistAsync(target, result)

	return result, nil
}

func (s *Service) persistAsync(target string, result Result) {
	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Warn("skipping audit record, id generation failed",
			zap.String("url", target), zap.Error(err))
		return
	}
	rec := Record{
		ID:             id,
		URL:            target,
		Scores:         result.Scores,
		Issues:         result.Issues,
		ResponseTimeMs: result.Meta.ResponseTimeMs,
		Cached:         false,
		CreatedAt:      s.clock.Now(),
	}
	go func() {
		// Detached from the request context: the response must not wait on
		// durability, and a canceled request must not abort the write.
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		defer cancel()
		if err := s.store.Append(ctx, rec); err != nil {
			s.logger.Warn("audit record append failed",
				zap.String("url", rec.URL), zap.Error(err))
		}
	}()
}

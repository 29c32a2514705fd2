// Command siteaudit runs the website audit HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"siteaudit/internal/api"
	"siteaudit/internal/audit"
	cachememory "siteaudit/internal/cache/memory"
	"siteaudit/internal/clock/system"
	"siteaudit/internal/config"
	collyfetcher "siteaudit/internal/fetcher/colly"
	uuidgen "siteaudit/internal/id/uuid"
	"siteaudit/internal/logging"
	"siteaudit/internal/ratelimit"
	"siteaudit/internal/safety"
	"siteaudit/internal/scoring"
	storememory "siteaudit/internal/storage/memory"
	"siteaudit/internal/storage/postgres"
	"siteaudit/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("siteaudit: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	clock := system.New()
	svc := audit.NewService(
		safety.NewGuard(),
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}),
		scoring.New(),
		cachememory.New(clock),
		store,
		uuidgen.New(),
		clock,
		audit.ServiceConfig{CacheTTL: cfg.CacheTTL()},
		logger,
	)
	limiter := ratelimit.New(
		ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateWindow()},
		clock,
	)
	server := api.NewServer(svc, limiter, store, cfg, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Provider),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newStore(ctx context.Context, cfg config.Config) (audit.RecordStore, error) {
	switch cfg.Storage.Provider {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:   cfg.Storage.PostgresDSN,
			Table: cfg.Storage.Table,
		})
	case "sqlite":
		return sqlite.New(ctx, cfg.Storage.SQLitePath)
	case "memory":
		return storememory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

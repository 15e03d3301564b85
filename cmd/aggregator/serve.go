package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/aggregate"
	"poolScope/internal/cache"
	"poolScope/internal/config"
	"poolScope/internal/dex"
	"poolScope/internal/fetcher"
	"poolScope/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapters, decoders, closeChains, err := buildChains(ctx, cfg.EVMRPCURL, cfg.AccountRPCURL, logger)
	if err != nil {
		return err
	}
	defer closeChains()

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	orch := fetcher.New(fetcher.Config{
		RetryBudget:       cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		ItemTimeout:       cfg.FetchTimeout,
		MaxConcurrency:    cfg.MaxConcurrency,
		RequestsPerSecond: cfg.RateLimit,
	}, adapters, dex.NewRegistry(decoders...), logger)

	snapshots := cache.New(
		cache.WithDefaultTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
	)
	go snapshots.Sweep(ctx, cfg.SweepInterval)

	registry := prometheus.NewRegistry()
	svc := aggregate.NewService(orch, snapshots, aggregate.NewMetrics(registry), logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newHTTPHandler(svc, store, registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("aggregator listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("chains", len(adapters)),
			zap.Duration("cache_ttl", cfg.CacheTTL),
			zap.Duration("fetch_timeout", cfg.FetchTimeout),
			zap.Int("max_concurrency", cfg.MaxConcurrency),
			zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

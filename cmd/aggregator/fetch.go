package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/config"
	"poolScope/internal/dex"
	"poolScope/internal/fetcher"
	"poolScope/internal/model"
	"poolScope/internal/storage"
	"poolScope/internal/storage/postgres"
)

func runFetch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFetch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Pools) == 0 {
		return fmt.Errorf("pool list is required")
	}
	ids, err := config.ParsePools(cfg.Pools)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapters, decoders, closeChains, err := buildChains(ctx, cfg.EVMRPCURL, cfg.AccountRPCURL, logger)
	if err != nil {
		return err
	}
	defer closeChains()

	orch := fetcher.New(fetcher.Config{
		RetryBudget:       cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		ItemTimeout:       cfg.FetchTimeout,
		MaxConcurrency:    cfg.MaxConcurrency,
		RequestsPerSecond: cfg.RateLimit,
	}, adapters, dex.NewRegistry(decoders...), logger)

	logger.Info("fetch start",
		zap.Int("pools", len(ids)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	results, batchErr := orch.FetchBatch(ctx, ids, fetcher.BatchOptions{})
	batch := model.BuildBatchResult(results)

	if cfg.Out != "" {
		var sink storage.Storage = storage.NewJsonlStorage(cfg.Out)
		if err := sink.PutSnapshotBatch(successRecords(batch)); err != nil {
			return fmt.Errorf("write jsonl: %w", err)
		}
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := store.UpsertSnapshots(ctx, successRecords(batch)); err != nil {
			return fmt.Errorf("upsert snapshots: %w", err)
		}
	}

	if cfg.Out == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(batch); err != nil {
			return err
		}
	}

	logger.Info("fetch complete",
		zap.Int("requested", batch.Requested),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
	)

	if batchErr != nil {
		return batchErr
	}
	if batch.Succeeded == 0 && batch.Failed > 0 {
		return fmt.Errorf("all %d pools failed", batch.Failed)
	}
	return nil
}

func successRecords(batch model.BatchResult) []model.SnapshotRecord {
	records := make([]model.SnapshotRecord, 0, batch.Succeeded)
	for _, res := range batch.Results {
		if res.Snapshot != nil {
			records = append(records, *res.Snapshot)
		}
	}
	return records
}

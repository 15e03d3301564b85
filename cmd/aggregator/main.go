package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolScope/internal/chain"
	"poolScope/internal/dex"
)

func main() {
	root := &cobra.Command{
		Use:          "aggregator",
		Short:        "Cross-chain liquidity pool state aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation HTTP service",
		RunE:  runServe,
	}

	serveCmd.Flags().String("evm-rpc", "", "EVM JSON-RPC URL")
	serveCmd.Flags().String("account-rpc", "", "account-model JSON-RPC URL")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for snapshot persistence")
	serveCmd.Flags().Duration("cache-ttl", 30*time.Second, "default snapshot freshness window")
	serveCmd.Flags().Duration("sweep-interval", time.Minute, "cache sweep interval")
	serveCmd.Flags().Int("max-retries", 2, "retry budget for transient fetch failures")
	serveCmd.Flags().Duration("retry-backoff", 200*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().Duration("fetch-timeout", 5*time.Second, "per-attempt fetch timeout")
	serveCmd.Flags().Int("max-concurrency", 8, "concurrent fetches per chain")
	serveCmd.Flags().Float64("rate-limit", 50, "outbound requests per second per chain, 0 disables")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a batch of pools once and write the result set",
		RunE:  runFetch,
	}

	fetchCmd.Flags().String("evm-rpc", "", "EVM JSON-RPC URL")
	fetchCmd.Flags().String("account-rpc", "", "account-model JSON-RPC URL")
	fetchCmd.Flags().StringSlice("pool", nil, "pools as chain:address (comma-separated or repeated)")
	fetchCmd.Flags().String("out", "", "output JSONL path, empty prints to stdout")
	fetchCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for snapshot persistence")
	fetchCmd.Flags().Int("max-retries", 2, "retry budget for transient fetch failures")
	fetchCmd.Flags().Duration("retry-backoff", 200*time.Millisecond, "initial retry backoff")
	fetchCmd.Flags().Duration("fetch-timeout", 5*time.Second, "per-attempt fetch timeout")
	fetchCmd.Flags().Int("max-concurrency", 8, "concurrent fetches per chain")
	fetchCmd.Flags().Float64("rate-limit", 50, "outbound requests per second per chain, 0 disables")
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(fetchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// buildChains constructs the adapter and decoder per configured chain
// family. The returned closer releases every underlying client.
func buildChains(ctx context.Context, evmRPC, accountRPC string, logger *zap.Logger) ([]chain.Adapter, []dex.Decoder, func(), error) {
	var (
		adapters []chain.Adapter
		decoders []dex.Decoder
		closers  []func()
	)
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	if evmRPC != "" {
		client, err := chain.NewEVMClient(ctx, evmRPC)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("connect evm rpc: %w", err)
		}
		closers = append(closers, client.Close)

		calldata, err := dex.ReserveQueryCalldata()
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		adapter, err := chain.NewEVMAdapter(client, calldata, logger)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		adapters = append(adapters, adapter)
		decoders = append(decoders, dex.NewEVMDecoder(dex.NewChainMetadataSource(client, logger), logger))
	}

	if accountRPC != "" {
		client := chain.NewAccountClient(accountRPC)
		adapters = append(adapters, chain.NewAccountAdapter(client, logger))
		decoders = append(decoders, dex.NewAccountDecoder(logger))
	}

	if len(adapters) == 0 {
		return nil, nil, nil, fmt.Errorf("at least one rpc url is required (evm-rpc or account-rpc)")
	}
	return adapters, decoders, closeAll, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

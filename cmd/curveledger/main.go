package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "curveledger",
		Short:        "Concentrated-liquidity collateral ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay operation records against an in-memory ledger",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("ops", "", "input operations JSONL")
	simulateCmd.Flags().String("out", "./data/events.jsonl", "output ledger events JSONL")
	simulateCmd.Flags().String("positions-out", "./data/positions.jsonl", "output position snapshot JSONL")
	simulateCmd.Flags().String("curves-out", "./data/curves.jsonl", "output curve state JSONL")
	simulateCmd.Flags().String("pool-file", "", "pool registry file (defaults to the pools key of the config)")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events, positions and curve state")
	simulateCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	simulateCmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "checkpoint file path")
	simulateCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	simulateCmd.Flags().Int("max-retries", 5, "maximum retry attempts for event writes")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	simulateCmd.Flags().String("metrics-out", "", "optional Prometheus text file for ledger metrics")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Print pool state and quotes for a registry entry",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("pool-file", "", "pool registry file (defaults to the pools key of the config)")
	quoteCmd.Flags().Int("index", 0, "registry entry index")
	quoteCmd.Flags().StringSlice("amount", []string{"1000000000000000000"}, "amounts to quote in base units (comma-separated)")
	quoteCmd.Flags().String("cursor", "0", "position amount the quotes start from")
	quoteCmd.Flags().Uint32("fee-rate", 0, "ledger fee rate in basis points")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate ledger events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input ledger events JSONL")
	aggregateCmd.Flags().String("window", "1h", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("out", "", "metrics JSONL file")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "local state file for progress tracking (default <out>.state.json without pg-dsn)")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().Uint("decimals", 18, "Currency decimals for formatted amounts")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	importCmd := &cobra.Command{
		Use:   "import-config",
		Short: "Build a pool config from a live Uniswap V3 pool",
		RunE:  runImportConfig,
	}

	importCmd.Flags().String("rpc", "", "RPC URL")
	importCmd.Flags().String("pool", "", "Uniswap V3 pool address")
	importCmd.Flags().String("asset", "", "pool token priced as the Asset")
	importCmd.Flags().Uint64("block", 0, "block to read, 0 means latest")
	importCmd.Flags().Int32("width", 10, "placement half-width in tick spacings")
	importCmd.Flags().String("out", "./pools.yaml", "registry file to append to")
	importCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(importCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare stored collateral with on-chain balances",
		RunE:  runAudit,
	}

	auditCmd.Flags().String("rpc", "", "RPC URL")
	auditCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	auditCmd.Flags().String("ledger", "", "ledger contract address holding the collateral")
	auditCmd.Flags().StringSlice("asset", nil, "restrict to these assets (comma-separated)")
	auditCmd.Flags().Uint64("block", 0, "block to read, 0 means latest")
	auditCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(auditCmd)

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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

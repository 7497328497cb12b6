package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLedger/internal/aggregate"
	"curveLedger/internal/config"
	"curveLedger/internal/storage"
	"curveLedger/internal/storage/postgres"
)

// aggregateSinks is where one aggregation run writes rows and progress.
type aggregateSinks struct {
	metrics aggregate.MetricsStore
	state   aggregate.StateStore
	close   func()
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	windowSeconds, err := windowSecondsOf(cfg.Window)
	if err != nil {
		return err
	}
	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openAggregateSinks(ctx, cfg, windowSeconds)
	if err != nil {
		return err
	}
	defer sinks.close()

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		Decimals:      cfg.Decimals,
		StateStore:    sinks.state,
	}, sinks.metrics, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("state_file", cfg.StateFile),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	start := time.Now()
	if err := agg.Run(ctx, cfg.Input); err != nil {
		return err
	}
	logger.Info("aggregate done", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func windowSecondsOf(window string) (uint64, error) {
	d, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("window must be at least 1s, got %s", window)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("window %s is not a whole number of seconds", window)
	}
	return uint64(d / time.Second), nil
}

// openAggregateSinks wires the JSONL file and Postgres sinks that are
// configured. Progress goes to state-file when set, then to the database,
// then to a file next to the JSONL output.
func openAggregateSinks(ctx context.Context, cfg config.AggregateConfig, windowSeconds uint64) (aggregateSinks, error) {
	if cfg.Out == "" && cfg.PGDSN == "" {
		return aggregateSinks{}, errors.New("one of out or pg-dsn is required")
	}

	sinks := aggregateSinks{close: func() {}}
	var stores []aggregate.MetricsStore
	if cfg.Out != "" {
		stores = append(stores, storage.NewJsonlMetricsStore(cfg.Out))
	}

	var db *postgres.Store
	if cfg.PGDSN != "" {
		var err error
		db, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return aggregateSinks{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return aggregateSinks{}, fmt.Errorf("ensure schema: %w", err)
		}
		stores = append(stores, db)
		sinks.close = db.Close
	}
	sinks.metrics = aggregate.Stores(stores...)

	switch {
	case cfg.StateFile != "":
		sinks.state = &aggregate.FileStateStore{Path: cfg.StateFile}
	case db != nil:
		sinks.state = &aggregate.DBStateStore{Store: db, Name: fmt.Sprintf("aggregator:%d", windowSeconds)}
	default:
		sinks.state = &aggregate.FileStateStore{Path: cfg.Out + ".state.json"}
	}
	return sinks, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLedger/internal/config"
	"curveLedger/internal/ledger"
	"curveLedger/internal/pool"
	"curveLedger/internal/replay"
	"curveLedger/internal/storage"
	"curveLedger/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Ops == "" {
		return fmt.Errorf("ops path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	worldCfg, err := cfg.World.WorldConfig()
	if err != nil {
		return err
	}
	var pools *pool.Registry
	if cfg.PoolFile != "" {
		pools, err = config.LoadPoolRegistry(cfg.PoolFile)
	} else {
		pools, err = config.PoolRegistry(cfg.Pools)
	}
	if err != nil {
		return fmt.Errorf("pool registry: %w", err)
	}
	worldCfg.Pools = pools
	worldCfg.Logger = logger

	var registry *prometheus.Registry
	if cfg.MetricsOut != "" {
		registry = prometheus.NewRegistry()
		if worldCfg.Metrics, err = ledger.NewMetrics(registry); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	ops, err := replay.ReadOperations(cfg.Ops)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	world, err := replay.NewWorld(ctx, worldCfg)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}

	sinks := []storage.Storage{storage.NewJsonlStorage(cfg.Out)}
	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, store)
	}

	runner := replay.NewRunner(replay.RunConfig{
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		Retry: replay.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		},
	}, world, storage.Fanout(sinks...), logger)

	logger.Info("simulate start",
		zap.String("ops", cfg.Ops),
		zap.Int("operations", len(ops)),
		zap.Int("pool_configs", pools.Len()),
		zap.Int("assets", len(worldCfg.Assets)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	sum, err := runner.Run(ctx, ops)
	if err != nil {
		return err
	}

	positions := world.Ledger.Owners()
	curves := world.Ledger.CurveStates()
	if cfg.PositionsOut != "" {
		if err := storage.WriteJSONL(cfg.PositionsOut, positions); err != nil {
			return fmt.Errorf("write positions: %w", err)
		}
	}
	if cfg.CurvesOut != "" {
		if err := storage.WriteJSONL(cfg.CurvesOut, curves); err != nil {
			return fmt.Errorf("write curves: %w", err)
		}
	}
	if store != nil {
		if err := store.ReplacePositions(ctx, positions); err != nil {
			return fmt.Errorf("store positions: %w", err)
		}
		if err := store.UpsertCurveStates(ctx, curves); err != nil {
			return fmt.Errorf("store curves: %w", err)
		}
	}

	for _, asset := range world.Ledger.Assets() {
		if err := world.Ledger.CheckConservation(asset); err != nil {
			logger.Warn("collateral check failed", zap.String("asset", asset.Hex()), zap.Error(err))
		}
	}

	if registry != nil {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	supply := world.Ledger.Supply()
	logger.Info("simulate done",
		zap.Int("restored", sum.Restored),
		zap.Int("applied", sum.Applied),
		zap.Int("failed", sum.Failed),
		zap.Int("events", sum.Events),
		zap.Int("positions", len(positions)),
		zap.String("minted", supply.Minted.Dec()),
		zap.String("burned", supply.Burned.Dec()),
		zap.String("fees", supply.Fees.Dec()),
	)
	return nil
}

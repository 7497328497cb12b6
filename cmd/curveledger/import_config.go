package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLedger/internal/chain"
	"curveLedger/internal/config"
	"curveLedger/internal/dex"
)

func runImportConfig(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadImport(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("invalid pool address: %q", cfg.Pool)
	}
	if !common.IsHexAddress(cfg.Asset) {
		return fmt.Errorf("invalid asset address: %q", cfg.Asset)
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	poolAddr := common.HexToAddress(cfg.Pool)
	asset := common.HexToAddress(cfg.Asset)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	block := cfg.Block
	if block == 0 {
		if block, err = chainClient.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}

	poolCfg, meta, err := dex.ImportPool(ctx, chainClient, poolAddr, asset, block, cfg.Width, logger)
	if err != nil {
		return fmt.Errorf("import pool %s: %w", poolAddr.Hex(), err)
	}

	tokens := dex.NewTokenMetaCache()
	token0 := tokens.Load(ctx, chainClient, common.HexToAddress(meta.Token0), logger)
	token1 := tokens.Load(ctx, chainClient, common.HexToAddress(meta.Token1), logger)
	if token0.Decimals != token1.Decimals {
		logger.Warn("pool tokens have different decimals, the imported price is in base units",
			zap.String("token0", token0.Symbol),
			zap.Uint8("decimals0", token0.Decimals),
			zap.String("token1", token1.Symbol),
			zap.Uint8("decimals1", token1.Decimals),
		)
	}

	index, err := config.AppendPoolConfig(cfg.Out, poolCfg)
	if err != nil {
		return err
	}

	placement := poolCfg.Placements[0]
	logger.Info("pool config imported",
		zap.String("chain_id", chainClient.ChainID().String()),
		zap.String("pool", poolAddr.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("token0", token0.Symbol),
		zap.String("token1", token1.Symbol),
		zap.Uint64("block", block),
		zap.Uint32("fee_tier", poolCfg.FeeTier),
		zap.Int32("tick_spacing", poolCfg.TickSpacing),
		zap.String("sqrt_price_x96", poolCfg.InitialSqrtPriceX96.Dec()),
		zap.Int32("tick_lower", placement.TickLower),
		zap.Int32("tick_upper", placement.TickUpper),
		zap.String("liquidity", placement.Amount.Dec()),
		zap.String("out", cfg.Out),
		zap.Int("index", index),
	)
	return nil
}

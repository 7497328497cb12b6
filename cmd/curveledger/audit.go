package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLedger/internal/chain"
	"curveLedger/internal/config"
	"curveLedger/internal/replay"
	"curveLedger/internal/storage/postgres"
)

func runAudit(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAudit(cfgFile, cmd.Flags())
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
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if !common.IsHexAddress(cfg.Ledger) {
		return fmt.Errorf("invalid ledger address: %q", cfg.Ledger)
	}
	ledgerAddr := common.HexToAddress(cfg.Ledger)
	only, err := replay.ParseAddresses(cfg.Assets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	stored, err := store.CollateralByAsset(ctx)
	if err != nil {
		return fmt.Errorf("load collateral: %w", err)
	}
	totals := make(map[common.Address]*big.Int, len(stored))
	for asset, total := range stored {
		v, ok := new(big.Int).SetString(total, 10)
		if !ok || !common.IsHexAddress(asset) {
			logger.Warn("skip unreadable collateral row", zap.String("asset", asset), zap.String("total", total))
			continue
		}
		totals[common.HexToAddress(asset)] = v
	}
	for _, asset := range only {
		if _, ok := totals[asset]; !ok {
			totals[asset] = new(big.Int)
		}
	}

	assets := make([]common.Address, 0, len(totals))
	for asset := range totals {
		if len(only) > 0 && !contains(only, asset) {
			continue
		}
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Hex() < assets[j].Hex() })

	blockNumber := chain.BlockArg(cfg.Block)
	mismatches := 0
	for _, asset := range assets {
		onChain, err := chain.BalanceOf(ctx, chainClient, asset, ledgerAddr, blockNumber)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", asset.Hex(), err)
		}
		fields := []zap.Field{
			zap.String("asset", asset.Hex()),
			zap.String("stored", totals[asset].String()),
			zap.String("on_chain", onChain.String()),
		}
		if onChain.Cmp(totals[asset]) != 0 {
			mismatches++
			logger.Warn("collateral mismatch", append(fields, zap.String("diff", new(big.Int).Sub(onChain, totals[asset]).String()))...)
			continue
		}
		logger.Info("collateral matches", fields...)
	}

	logger.Info("audit done",
		zap.String("chain_id", chainClient.ChainID().String()),
		zap.String("ledger", ledgerAddr.Hex()),
		zap.Uint64("block", cfg.Block),
		zap.Int("assets", len(assets)),
		zap.Int("mismatches", mismatches),
	)
	if mismatches > 0 {
		return fmt.Errorf("%d of %d assets do not match", mismatches, len(assets))
	}
	return nil
}

func contains(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

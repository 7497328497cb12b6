package dex

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/chain"
	"curveLedger/internal/clmath"
	"curveLedger/internal/model"
	"curveLedger/internal/pool"
)

var ErrAssetNotInPool = errors.New("dex: asset is neither token0 nor token1 of the pool")

// ImportOptions shapes the single placement built from a live pool.
type ImportOptions struct {
	// WidthSpacings is the number of tick spacings on each side of the
	// spacing that holds the current tick.
	WidthSpacings int32
	// Invert flips the price to Asset-as-token0 orientation, for pools where
	// the Asset is token1.
	Invert bool
}

// PoolConfig converts a pool's live state into a bootstrap config: the
// pool's sqrt price becomes the initial price and its active liquidity is
// placed around the current tick.
func PoolConfig(meta model.PoolMeta, opts ImportOptions) (pool.Config, error) {
	if meta.Slot0 == nil || meta.Liquidity == "" {
		return pool.Config{}, fmt.Errorf("pool meta has no slot0 or liquidity")
	}
	if opts.WidthSpacings < 0 {
		return pool.Config{}, fmt.Errorf("width must be >= 0, got %d", opts.WidthSpacings)
	}
	sqrt, err := uint256.FromDecimal(meta.Slot0.SqrtPriceX96)
	if err != nil {
		return pool.Config{}, fmt.Errorf("sqrt price: %w", err)
	}
	liquidity, err := uint256.FromDecimal(meta.Liquidity)
	if err != nil {
		return pool.Config{}, fmt.Errorf("liquidity: %w", err)
	}
	if liquidity.IsZero() {
		return pool.Config{}, fmt.Errorf("pool has no active liquidity")
	}

	if opts.Invert {
		if sqrt.IsZero() {
			return pool.Config{}, fmt.Errorf("sqrt price is zero")
		}
		// 1/p in Q64.96 is 2^192/sqrtP.
		if sqrt, err = clmath.MulDiv(clmath.Q96, clmath.Q96, sqrt); err != nil {
			return pool.Config{}, fmt.Errorf("invert price: %w", err)
		}
	}
	if sqrt.Lt(clmath.MinSqrtRatio) || !sqrt.Lt(clmath.MaxSqrtRatio) {
		return pool.Config{}, fmt.Errorf("sqrt price %s out of range", sqrt.Dec())
	}
	tick, err := clmath.GetTickAtSqrtRatio(sqrt)
	if err != nil {
		return pool.Config{}, err
	}

	lower, upper := placementAround(tick, meta.TickSpacing, opts.WidthSpacings)
	cfg := pool.Config{
		FeeTier:             meta.Fee,
		TickSpacing:         meta.TickSpacing,
		InitialSqrtPriceX96: sqrt,
		Placements: []pool.Placement{
			{TickLower: lower, TickUpper: upper, Amount: liquidity},
		},
	}
	if err := cfg.Validate(); err != nil {
		return pool.Config{}, err
	}
	return cfg, nil
}

// placementAround returns the spacing-aligned range covering tick plus
// width spacings on each side, clamped to the usable ticks.
func placementAround(tick, spacing, width int32) (int32, int32) {
	if spacing <= 0 {
		return tick, tick
	}
	base := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		base--
	}
	lower := (base - width) * spacing
	upper := (base + width + 1) * spacing

	maxUsable := clmath.MaxTick / spacing * spacing
	if lower < -maxUsable {
		lower = -maxUsable
	}
	if upper > maxUsable {
		upper = maxUsable
	}
	return lower, upper
}

// ImportPool reads a live pool and builds the config for asset. The price
// is inverted when asset is the pool's token1.
func ImportPool(ctx context.Context, caller chain.ContractCaller, poolAddr, asset common.Address, blockNumber uint64, width int32, logger *zap.Logger) (pool.Config, model.PoolMeta, error) {
	meta, err := FetchPoolMeta(ctx, caller, poolAddr)
	if err != nil {
		return pool.Config{}, model.PoolMeta{}, err
	}
	live, err := FetchPoolOptionalMeta(ctx, caller, poolAddr, blockNumber, logger)
	if err != nil {
		return pool.Config{}, meta, err
	}
	meta.Address = poolAddr.Hex()
	meta.Block = blockNumber
	meta.Liquidity = live.Liquidity
	meta.Slot0 = live.Slot0

	opts := ImportOptions{WidthSpacings: width}
	switch asset {
	case common.HexToAddress(meta.Token0):
	case common.HexToAddress(meta.Token1):
		opts.Invert = true
	default:
		return pool.Config{}, meta, fmt.Errorf("%w: %s", ErrAssetNotInPool, asset.Hex())
	}
	cfg, err := PoolConfig(meta, opts)
	return cfg, meta, err
}

package pool

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"curveLedger/internal/clmath"
)

// Pool is a virtual concentrated-liquidity pool. Token0 is the Asset and
// token1 is the Currency, so the price is Currency per Asset.
type Pool struct {
	feeTier             uint32
	tickSpacing         int32
	maxLiquidityPerTick *uint256.Int

	liquidity    *uint256.Int
	sqrtPriceX96 *uint256.Int
	tick         int32
	unlocked     bool

	balance0 *big.Int
	balance1 *big.Int
	swaps    uint64

	ticks *tickTable
}

// State is a read-only copy of a pool's scalar state.
type State struct {
	FeeTier             uint32
	TickSpacing         int32
	MaxLiquidityPerTick *uint256.Int
	Liquidity           *uint256.Int
	SqrtPriceX96        *uint256.Int
	Tick                int32
	Unlocked            bool
	Balance0            *big.Int
	Balance1            *big.Int
	Swaps               uint64
}

// New bootstraps a pool from cfg: price and tick come from the initial sqrt
// price and every placement is added as liquidity over [tickLower, tickUpper).
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tick, err := clmath.GetTickAtSqrtRatio(cfg.InitialSqrtPriceX96)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		feeTier:             cfg.FeeTier,
		tickSpacing:         cfg.TickSpacing,
		maxLiquidityPerTick: MaxLiquidityPerTick(cfg.TickSpacing),
		liquidity:           new(uint256.Int),
		sqrtPriceX96:        cfg.InitialSqrtPriceX96.Clone(),
		tick:                tick,
		unlocked:            true,
		balance0:            new(big.Int),
		balance1:            new(big.Int),
		ticks:               newTickTable(),
	}

	for i, placement := range cfg.Placements {
		if err := p.addLiquidity(placement); err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}
	}
	return p, nil
}

// MaxLiquidityPerTick spreads the uint128 liquidity range over every usable tick.
func MaxLiquidityPerTick(tickSpacing int32) *uint256.Int {
	minTick := (clmath.MinTick / tickSpacing) * tickSpacing
	maxTick := (clmath.MaxTick / tickSpacing) * tickSpacing
	numTicks := uint64((maxTick-minTick)/tickSpacing) + 1
	return new(uint256.Int).Div(clmath.MaxUint128, uint256.NewInt(numTicks))
}

func (p *Pool) addLiquidity(placement Placement) error {
	if err := p.ticks.update(placement.TickLower, placement.Amount, false, p.maxLiquidityPerTick); err != nil {
		return err
	}
	if err := p.ticks.update(placement.TickUpper, placement.Amount, true, p.maxLiquidityPerTick); err != nil {
		return err
	}
	if placement.TickLower <= p.tick && p.tick < placement.TickUpper {
		liquidity, err := clmath.AddDelta(p.liquidity, placement.Amount)
		if err != nil {
			return err
		}
		p.liquidity = liquidity
	}
	return nil
}

// Clone returns an independent working copy of the pool.
func (p *Pool) Clone() *Pool {
	return &Pool{
		feeTier:             p.feeTier,
		tickSpacing:         p.tickSpacing,
		maxLiquidityPerTick: p.maxLiquidityPerTick.Clone(),
		liquidity:           p.liquidity.Clone(),
		sqrtPriceX96:        p.sqrtPriceX96.Clone(),
		tick:                p.tick,
		unlocked:            p.unlocked,
		balance0:            new(big.Int).Set(p.balance0),
		balance1:            new(big.Int).Set(p.balance1),
		swaps:               p.swaps,
		ticks:               p.ticks.clone(),
	}
}

func (p *Pool) FeeTier() uint32 { return p.feeTier }

func (p *Pool) TickSpacing() int32 { return p.tickSpacing }

func (p *Pool) Tick() int32 { return p.tick }

// Unlocked reports whether no swap is in progress on the pool.
func (p *Pool) Unlocked() bool { return p.unlocked }

// Liquidity returns the active liquidity.
func (p *Pool) Liquidity() *uint256.Int { return p.liquidity.Clone() }

func (p *Pool) SqrtPriceX96() *uint256.Int { return p.sqrtPriceX96.Clone() }

// TickInfo returns the state of an initialized tick.
func (p *Pool) TickInfo(tick int32) (TickInfo, bool) {
	return p.ticks.get(tick)
}

// InitializedTicks returns the initialized ticks in ascending order.
func (p *Pool) InitializedTicks() []int32 {
	return p.ticks.ticks()
}

// State returns a snapshot of the pool's scalar state.
func (p *Pool) State() State {
	return State{
		FeeTier:             p.feeTier,
		TickSpacing:         p.tickSpacing,
		MaxLiquidityPerTick: p.maxLiquidityPerTick.Clone(),
		Liquidity:           p.liquidity.Clone(),
		SqrtPriceX96:        p.sqrtPriceX96.Clone(),
		Tick:                p.tick,
		Unlocked:            p.unlocked,
		Balance0:            new(big.Int).Set(p.balance0),
		Balance1:            new(big.Int).Set(p.balance1),
		Swaps:               p.swaps,
	}
}

// recordFlow adds signed token flows to the balance counters.
func (p *Pool) recordFlow(delta0, delta1 *big.Int) {
	p.balance0.Add(p.balance0, delta0)
	p.balance1.Add(p.balance1, delta1)
}

package pool

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"curveLedger/internal/clmath"
	"curveLedger/internal/errcode"
)

var (
	ErrInvalidConfig  = errcode.New(errcode.InvalidConfig, "pool: invalid config")
	ErrConfigNotFound = errcode.New(errcode.InvalidConfig, "pool: config index not found")
)

// feeTierSpacing maps each supported fee tier to its minimum tick spacing.
var feeTierSpacing = map[uint32]int32{
	0:     1,
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// MinTickSpacing returns the minimum tick spacing of a fee tier.
func MinTickSpacing(feeTier uint32) (int32, bool) {
	spacing, ok := feeTierSpacing[feeTier]
	return spacing, ok
}

// FeeTiers returns the supported fee tiers in ascending order.
func FeeTiers() []uint32 {
	tiers := make([]uint32, 0, len(feeTierSpacing))
	for tier := range feeTierSpacing {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// Placement is one liquidity addition applied at bootstrap.
type Placement struct {
	TickLower int32
	TickUpper int32
	Amount    *uint256.Int
}

// Config holds the bootstrap parameters of a pool pair.
type Config struct {
	FeeTier             uint32
	TickSpacing         int32
	InitialSqrtPriceX96 *uint256.Int
	Placements          []Placement
}

// Validate checks the config against the tick space and the fee tier table.
func (c Config) Validate() error {
	minSpacing, ok := feeTierSpacing[c.FeeTier]
	if !ok {
		return fmt.Errorf("%w: unsupported fee tier %d", ErrInvalidConfig, c.FeeTier)
	}
	if c.TickSpacing <= 0 || c.TickSpacing%minSpacing != 0 {
		return fmt.Errorf("%w: tick spacing %d is not a multiple of %d", ErrInvalidConfig, c.TickSpacing, minSpacing)
	}
	if c.InitialSqrtPriceX96 == nil || c.InitialSqrtPriceX96.Lt(clmath.MinSqrtRatio) || !c.InitialSqrtPriceX96.Lt(clmath.MaxSqrtRatio) {
		return fmt.Errorf("%w: initial sqrt price out of range", ErrInvalidConfig)
	}
	if len(c.Placements) == 0 {
		return fmt.Errorf("%w: no placements", ErrInvalidConfig)
	}
	for i, p := range c.Placements {
		if p.TickLower >= p.TickUpper {
			return fmt.Errorf("%w: placement %d: tickLower %d >= tickUpper %d", ErrInvalidConfig, i, p.TickLower, p.TickUpper)
		}
		if p.TickLower < clmath.MinTick || p.TickUpper > clmath.MaxTick {
			return fmt.Errorf("%w: placement %d: ticks out of range", ErrInvalidConfig, i)
		}
		if p.TickLower%c.TickSpacing != 0 || p.TickUpper%c.TickSpacing != 0 {
			return fmt.Errorf("%w: placement %d: ticks not aligned to spacing %d", ErrInvalidConfig, i, c.TickSpacing)
		}
		if p.Amount == nil || p.Amount.IsZero() || p.Amount.Gt(clmath.MaxUint128) {
			return fmt.Errorf("%w: placement %d: amount must be in (0, 2^128)", ErrInvalidConfig, i)
		}
	}
	return nil
}

func (c Config) clone() Config {
	out := Config{
		FeeTier:             c.FeeTier,
		TickSpacing:         c.TickSpacing,
		InitialSqrtPriceX96: c.InitialSqrtPriceX96.Clone(),
		Placements:          make([]Placement, len(c.Placements)),
	}
	for i, p := range c.Placements {
		out.Placements[i] = Placement{TickLower: p.TickLower, TickUpper: p.TickUpper, Amount: p.Amount.Clone()}
	}
	return out
}

// Registry is an immutable, index-addressed catalog of pool configs.
type Registry struct {
	configs []Config
}

// NewRegistry validates and copies the configs.
func NewRegistry(configs ...Config) (*Registry, error) {
	stored := make([]Config, 0, len(configs))
	for i, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config %d: %w", i, err)
		}
		stored = append(stored, cfg.clone())
	}
	return &Registry{configs: stored}, nil
}

// Get returns a copy of the config at index.
func (r *Registry) Get(index int) (Config, error) {
	if index < 0 || index >= len(r.configs) {
		return Config{}, fmt.Errorf("%w: %d", ErrConfigNotFound, index)
	}
	return r.configs[index].clone(), nil
}

// Len returns the number of configs.
func (r *Registry) Len() int {
	return len(r.configs)
}

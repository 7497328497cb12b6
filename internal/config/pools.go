package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"curveLedger/internal/pool"
)

const poolsKey = "pools"

// PlacementFile is one liquidity placement as written in a registry file.
type PlacementFile struct {
	TickLower int32  `mapstructure:"tick-lower"`
	TickUpper int32  `mapstructure:"tick-upper"`
	Amount    string `mapstructure:"amount"`
}

// PoolFile is one registry entry. Big integers are decimal strings.
type PoolFile struct {
	FeeTier      uint32          `mapstructure:"fee-tier"`
	TickSpacing  int32           `mapstructure:"tick-spacing"`
	SqrtPriceX96 string          `mapstructure:"sqrt-price-x96"`
	Placements   []PlacementFile `mapstructure:"placements"`
}

// PoolConfig converts the entry and validates it.
func (p PoolFile) PoolConfig() (pool.Config, error) {
	sqrt, err := uint256.FromDecimal(p.SqrtPriceX96)
	if err != nil {
		return pool.Config{}, fmt.Errorf("sqrt-price-x96 %q: %w", p.SqrtPriceX96, err)
	}
	cfg := pool.Config{
		FeeTier:             p.FeeTier,
		TickSpacing:         p.TickSpacing,
		InitialSqrtPriceX96: sqrt,
		Placements:          make([]pool.Placement, 0, len(p.Placements)),
	}
	for i, pl := range p.Placements {
		amount, err := uint256.FromDecimal(pl.Amount)
		if err != nil {
			return pool.Config{}, fmt.Errorf("placement %d amount %q: %w", i, pl.Amount, err)
		}
		cfg.Placements = append(cfg.Placements, pool.Placement{
			TickLower: pl.TickLower,
			TickUpper: pl.TickUpper,
			Amount:    amount,
		})
	}
	if err := cfg.Validate(); err != nil {
		return pool.Config{}, err
	}
	return cfg, nil
}

// NewPoolFile is the inverse of PoolFile.PoolConfig.
func NewPoolFile(cfg pool.Config) PoolFile {
	out := PoolFile{
		FeeTier:     cfg.FeeTier,
		TickSpacing: cfg.TickSpacing,
		Placements:  make([]PlacementFile, 0, len(cfg.Placements)),
	}
	if cfg.InitialSqrtPriceX96 != nil {
		out.SqrtPriceX96 = cfg.InitialSqrtPriceX96.Dec()
	}
	for _, pl := range cfg.Placements {
		amount := "0"
		if pl.Amount != nil {
			amount = pl.Amount.Dec()
		}
		out.Placements = append(out.Placements, PlacementFile{TickLower: pl.TickLower, TickUpper: pl.TickUpper, Amount: amount})
	}
	return out
}

// PoolRegistry builds a registry from decoded entries, in order.
func PoolRegistry(entries []PoolFile) (*pool.Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no pool configurations")
	}
	configs := make([]pool.Config, 0, len(entries))
	for i, entry := range entries {
		cfg, err := entry.PoolConfig()
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return pool.NewRegistry(configs...)
}

// ReadPoolFile decodes the pools list of a YAML, JSON or TOML file.
func ReadPoolFile(path string) ([]PoolFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}
	var entries []PoolFile
	if err := v.UnmarshalKey(poolsKey, &entries); err != nil {
		return nil, fmt.Errorf("decode pools: %w", err)
	}
	return entries, nil
}

// LoadPoolRegistry reads path and builds the registry it describes.
func LoadPoolRegistry(path string) (*pool.Registry, error) {
	entries, err := ReadPoolFile(path)
	if err != nil {
		return nil, err
	}
	return PoolRegistry(entries)
}

// AppendPoolConfig adds cfg to the registry file at path, creating the file
// when it does not exist, and returns the new entry's index.
func AppendPoolConfig(path string, cfg pool.Config) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	var entries []PoolFile
	if _, err := os.Stat(path); err == nil {
		if entries, err = ReadPoolFile(path); err != nil {
			return 0, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("stat pool file: %w", err)
	}
	entries = append(entries, NewPoolFile(cfg))

	raw := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		placements := make([]map[string]any, 0, len(entry.Placements))
		for _, pl := range entry.Placements {
			placements = append(placements, map[string]any{
				"tick-lower": pl.TickLower,
				"tick-upper": pl.TickUpper,
				"amount":     pl.Amount,
			})
		}
		raw = append(raw, map[string]any{
			"fee-tier":       entry.FeeTier,
			"tick-spacing":   entry.TickSpacing,
			"sqrt-price-x96": entry.SqrtPriceX96,
			"placements":     placements,
		})
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create pool file dir: %w", err)
		}
	}
	v := viper.New()
	v.Set(poolsKey, raw)
	if err := v.WriteConfigAs(path); err != nil {
		return 0, fmt.Errorf("write pool file: %w", err)
	}
	return len(entries) - 1, nil
}

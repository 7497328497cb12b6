package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/replay"
)

// TokenFile describes an in-memory token.
type TokenFile struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
}

// AssetFile is a token registered as an Asset with registry entry Pool.
type AssetFile struct {
	TokenFile `mapstructure:",squash"`
	Pool      int `mapstructure:"pool"`
}

type PairFile struct {
	TokenA  string `mapstructure:"token-a"`
	TokenB  string `mapstructure:"token-b"`
	AmountA string `mapstructure:"amount-a"`
	AmountB string `mapstructure:"amount-b"`
	FeeBps  uint32 `mapstructure:"fee-bps"`
}

type ExchangeFile struct {
	Address  string     `mapstructure:"address"`
	Provider string     `mapstructure:"provider"`
	Pairs    []PairFile `mapstructure:"pairs"`
}

// WorldFile is the "world" section of a simulate config.
type WorldFile struct {
	Ledger   string        `mapstructure:"ledger"`
	Admin    string        `mapstructure:"admin"`
	Funder   string        `mapstructure:"funder"`
	FeeSink  string        `mapstructure:"fee-sink"`
	FeeRate  uint32        `mapstructure:"fee-rate"`
	Start    int64         `mapstructure:"start"`
	Currency TokenFile     `mapstructure:"currency"`
	Assets   []AssetFile   `mapstructure:"assets"`
	Tokens   []TokenFile   `mapstructure:"tokens"`
	Exchange *ExchangeFile `mapstructure:"exchange"`
	Market   bool          `mapstructure:"market"`
}

// WorldConfig converts the section. Pools, metrics and logger are left for
// the caller.
func (w WorldFile) WorldConfig() (replay.WorldConfig, error) {
	var (
		cfg replay.WorldConfig
		err error
	)
	for _, f := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"world.ledger", w.Ledger, &cfg.Ledger},
		{"world.admin", w.Admin, &cfg.Admin},
		{"world.funder", w.Funder, &cfg.Funder},
		{"world.fee-sink", w.FeeSink, &cfg.FeeSink},
	} {
		if *f.dst, err = address(f.name, f.value); err != nil {
			return replay.WorldConfig{}, err
		}
	}
	cfg.FeeRate = w.FeeRate
	cfg.Start = w.Start
	cfg.Market = w.Market

	if cfg.Currency, err = w.Currency.spec("world.currency"); err != nil {
		return replay.WorldConfig{}, err
	}
	for i, a := range w.Assets {
		spec, err := a.spec(fmt.Sprintf("world.assets[%d]", i))
		if err != nil {
			return replay.WorldConfig{}, err
		}
		cfg.Assets = append(cfg.Assets, replay.AssetSpec{TokenSpec: spec, ConfigIndex: a.Pool})
	}
	for i, t := range w.Tokens {
		spec, err := t.spec(fmt.Sprintf("world.tokens[%d]", i))
		if err != nil {
			return replay.WorldConfig{}, err
		}
		cfg.Tokens = append(cfg.Tokens, spec)
	}

	if w.Exchange != nil {
		ex := &replay.ExchangeSpec{}
		if ex.Address, err = address("world.exchange.address", w.Exchange.Address); err != nil {
			return replay.WorldConfig{}, err
		}
		if ex.Provider, err = address("world.exchange.provider", w.Exchange.Provider); err != nil {
			return replay.WorldConfig{}, err
		}
		for i, p := range w.Exchange.Pairs {
			pair, err := p.spec(fmt.Sprintf("world.exchange.pairs[%d]", i))
			if err != nil {
				return replay.WorldConfig{}, err
			}
			ex.Pairs = append(ex.Pairs, pair)
		}
		cfg.Exchange = ex
	}
	return cfg, nil
}

func (t TokenFile) spec(field string) (replay.TokenSpec, error) {
	addr, err := address(field+".address", t.Address)
	if err != nil {
		return replay.TokenSpec{}, err
	}
	decimals := t.Decimals
	if decimals == 0 {
		decimals = 18
	}
	return replay.TokenSpec{Address: addr, Symbol: t.Symbol, Decimals: decimals}, nil
}

func (p PairFile) spec(field string) (replay.PairSpec, error) {
	a, err := address(field+".token-a", p.TokenA)
	if err != nil {
		return replay.PairSpec{}, err
	}
	b, err := address(field+".token-b", p.TokenB)
	if err != nil {
		return replay.PairSpec{}, err
	}
	amountA, err := uint256.FromDecimal(p.AmountA)
	if err != nil {
		return replay.PairSpec{}, fmt.Errorf("%s.amount-a %q: %w", field, p.AmountA, err)
	}
	amountB, err := uint256.FromDecimal(p.AmountB)
	if err != nil {
		return replay.PairSpec{}, fmt.Errorf("%s.amount-b %q: %w", field, p.AmountB, err)
	}
	return replay.PairSpec{TokenA: a, TokenB: b, AmountA: amountA, AmountB: amountB, FeeBps: p.FeeBps}, nil
}

func address(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, input)
	}
	return common.HexToAddress(input), nil
}

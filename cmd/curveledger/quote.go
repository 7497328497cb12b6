package main

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLedger/internal/config"
	"curveLedger/internal/ledger"
	"curveLedger/internal/pool"
)

type poolReport struct {
	Index        int    `json:"index"`
	FeeTier      uint32 `json:"fee_tier"`
	TickSpacing  int32  `json:"tick_spacing"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
	Liquidity    string `json:"liquidity"`
	Ticks        int    `json:"initialized_ticks"`
}

type amountQuote struct {
	Cursor string `json:"cursor"`
	Amount string `json:"amount"`
	// open: lock Amount of Asset
	OpenGross string `json:"open_gross,omitempty"`
	OpenFee   string `json:"open_fee,omitempty"`
	OpenNet   string `json:"open_net,omitempty"`
	// redeem: release the last Amount of a position at Cursor+Amount
	RedeemCost string `json:"redeem_cost,omitempty"`
	// leveraged: Amount is the Currency target
	LeveragedAsset string `json:"leveraged_asset,omitempty"`
	LeveragedPay   string `json:"leveraged_pay,omitempty"`
	Error          string `json:"error,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var registry *pool.Registry
	if cfg.PoolFile != "" {
		registry, err = config.LoadPoolRegistry(cfg.PoolFile)
	} else {
		registry, err = config.PoolRegistry(cfg.Pools)
	}
	if err != nil {
		return fmt.Errorf("pool registry: %w", err)
	}
	poolCfg, err := registry.Get(cfg.Index)
	if err != nil {
		return err
	}
	pair, err := pool.NewPair(poolCfg)
	if err != nil {
		return err
	}
	cursor, err := uint256.FromDecimal(cfg.Cursor)
	if err != nil {
		return fmt.Errorf("cursor %q: %w", cfg.Cursor, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	state := pair.CurrencyToAsset.State()
	if err := enc.Encode(poolReport{
		Index:        cfg.Index,
		FeeTier:      state.FeeTier,
		TickSpacing:  state.TickSpacing,
		SqrtPriceX96: state.SqrtPriceX96.Dec(),
		Tick:         state.Tick,
		Liquidity:    state.Liquidity.Dec(),
		Ticks:        len(pair.CurrencyToAsset.InitializedTicks()),
	}); err != nil {
		return err
	}

	for _, raw := range cfg.Amounts {
		amount, err := uint256.FromDecimal(raw)
		if err != nil {
			return fmt.Errorf("amount %q: %w", raw, err)
		}
		q := quoteAmount(pair, cursor, amount, cfg.FeeRate)
		if q.Error != "" {
			logger.Warn("quote failed", zap.String("amount", raw), zap.String("error", q.Error))
		}
		if err := enc.Encode(q); err != nil {
			return err
		}
	}
	return nil
}

// quoteAmount prices the three curve flows for one amount. Failures are
// reported in the row rather than aborting the run.
func quoteAmount(pair *pool.Pair, cursor, amount *uint256.Int, feeRate uint32) amountQuote {
	q := amountQuote{Cursor: cursor.Dec(), Amount: amount.Dec()}
	fail := func(step string, err error) amountQuote {
		q.Error = fmt.Sprintf("%s: %s (%s)", step, err, ledger.CodeOf(err))
		return q
	}

	to := new(uint256.Int).Add(cursor, amount)
	sell, err := pair.QuoteSell(cursor, to)
	if err != nil {
		return fail("open", err)
	}
	fee, err := ledger.FeeOf(sell.Currency, feeRate)
	if err != nil {
		return fail("open", err)
	}
	q.OpenGross = sell.Currency.Dec()
	q.OpenFee = fee.Dec()
	q.OpenNet = new(uint256.Int).Sub(sell.Currency, fee).Dec()

	buy, err := pair.QuoteBuy(cursor, to)
	if err != nil {
		return fail("redeem", err)
	}
	q.RedeemCost = buy.Currency.Dec()

	spend, err := pair.QuoteSpend(cursor, amount)
	if err != nil {
		return fail("leveraged", err)
	}
	if spend.Asset.IsZero() {
		return q
	}
	lock, err := pair.QuoteSell(cursor, new(uint256.Int).Add(cursor, spend.Asset))
	if err != nil {
		return fail("leveraged", err)
	}
	lockFee, err := ledger.FeeOf(lock.Currency, feeRate)
	if err != nil {
		return fail("leveraged", err)
	}
	net := new(uint256.Int).Sub(lock.Currency, lockFee)
	pay, underflow := new(uint256.Int).SubOverflow(amount, net)
	if underflow {
		return fail("leveraged", fmt.Errorf("%w: net %s above target %s", pool.ErrSettlementUnderflow, net.Dec(), amount.Dec()))
	}
	q.LeveragedAsset = spend.Asset.Dec()
	q.LeveragedPay = pay.Dec()
	return q
}

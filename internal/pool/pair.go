package pool

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Pair holds the two one-directional pools of an Asset, both seeded from the
// same config. CurrencyToAsset prices Currency spent for Asset dispensed from
// the curve, AssetToCurrency prices Asset returned to it.
//
// A position's locked amount is its cursor on the curve: quotes run on
// working copies of the genesis pools advanced to that cursor, so a
// position's valuation depends only on its own amount and never on other
// positions. The live pools keep the genesis curve and accumulate the flows
// of committed operations in their balance counters.
//
// Quotes run fee-exempt: the fee tier fixes the tick spacing and charges
// direct Swap callers, while ledger valuations use the bare curve.
type Pair struct {
	config          Config
	CurrencyToAsset *Pool
	AssetToCurrency *Pool
}

// Quote is the outcome of pricing a curve segment.
type Quote struct {
	Asset    *uint256.Int
	Currency *uint256.Int
}

// Shift prices moving a segment of Amount from the top of a cursor, [High-Amount, High),
// down to the bottom of the curve, [0, Amount). Settlement is Top - Bottom.
type Shift struct {
	Amount     *uint256.Int
	High       *uint256.Int
	Top        *uint256.Int
	Bottom     *uint256.Int
	Settlement *uint256.Int
}

// NewPair bootstraps both pools from cfg.
func NewPair(cfg Config) (*Pair, error) {
	up, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("currency to asset pool: %w", err)
	}
	down, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("asset to currency pool: %w", err)
	}
	return &Pair{config: cfg.clone(), CurrencyToAsset: up, AssetToCurrency: down}, nil
}

// Config returns the bootstrap config of the pair.
func (pr *Pair) Config() Config {
	return pr.config.clone()
}

// advance moves a working pool to cursor by dispensing that much Asset.
func advance(w *Pool, cursor *uint256.Int) error {
	if cursor.IsZero() {
		return nil
	}
	_, err := Swap(w, SwapParams{ZeroForOne: false, ExactInput: false, Amount: cursor, FeeExempt: true})
	if err != nil {
		return fmt.Errorf("advance to %s: %w", cursor.Dec(), err)
	}
	return nil
}

// QuoteSell prices returning the Asset segment [from, to) to the curve:
// the Currency realized by an exact-input sale of to-from, rounded down.
func (pr *Pair) QuoteSell(from, to *uint256.Int) (Quote, error) {
	if !to.Gt(from) {
		return Quote{}, ErrZeroAmount
	}
	amount := new(uint256.Int).Sub(to, from)
	w := pr.AssetToCurrency.Clone()
	if err := advance(w, to); err != nil {
		return Quote{}, err
	}
	res, err := Swap(w, SwapParams{ZeroForOne: true, ExactInput: true, Amount: amount, FeeExempt: true})
	if err != nil {
		return Quote{}, err
	}
	if res.Partial {
		return Quote{}, ErrInsufficientLiquidity
	}
	return Quote{Asset: amount, Currency: res.AmountOut}, nil
}

// QuoteBuy prices dispensing the Asset segment [from, to) from the curve:
// the Currency cost of an exact-output purchase of to-from, rounded up.
func (pr *Pair) QuoteBuy(from, to *uint256.Int) (Quote, error) {
	if !to.Gt(from) {
		return Quote{}, ErrZeroAmount
	}
	amount := new(uint256.Int).Sub(to, from)
	w := pr.CurrencyToAsset.Clone()
	if err := advance(w, from); err != nil {
		return Quote{}, err
	}
	res, err := Swap(w, SwapParams{ZeroForOne: false, ExactInput: false, Amount: amount, FeeExempt: true})
	if err != nil {
		return Quote{}, err
	}
	return Quote{Asset: amount, Currency: res.AmountIn}, nil
}

// QuoteSpend prices spending currencyIn on the curve starting at from: the
// Asset obtained by an exact-input purchase, rounded down.
func (pr *Pair) QuoteSpend(from, currencyIn *uint256.Int) (Quote, error) {
	w := pr.CurrencyToAsset.Clone()
	if err := advance(w, from); err != nil {
		return Quote{}, err
	}
	res, err := Swap(w, SwapParams{ZeroForOne: false, ExactInput: true, Amount: currencyIn, FeeExempt: true})
	if err != nil {
		return Quote{}, err
	}
	if res.Partial {
		return Quote{}, ErrInsufficientLiquidity
	}
	return Quote{Asset: res.AmountOut, Currency: currencyIn.Clone()}, nil
}

// QuoteShift prices re-basing amount from the top of cursor high to the
// bottom of the curve, both at exact-output cost. Split charges the
// settlement and merge refunds it, so the two are exact inverses.
func (pr *Pair) QuoteShift(high, amount *uint256.Int) (Shift, error) {
	if amount == nil || amount.IsZero() {
		return Shift{}, ErrZeroAmount
	}
	if amount.Gt(high) {
		return Shift{}, fmt.Errorf("%w: shift %s above cursor %s", ErrSettlementUnderflow, amount.Dec(), high.Dec())
	}
	top, err := pr.QuoteBuy(new(uint256.Int).Sub(high, amount), high)
	if err != nil {
		return Shift{}, err
	}
	bottom, err := pr.QuoteBuy(new(uint256.Int), amount)
	if err != nil {
		return Shift{}, err
	}
	settlement, underflow := new(uint256.Int).SubOverflow(top.Currency, bottom.Currency)
	if underflow {
		return Shift{}, fmt.Errorf("%w: top %s below bottom %s", ErrSettlementUnderflow, top.Currency.Dec(), bottom.Currency.Dec())
	}
	return Shift{
		Amount:     amount.Clone(),
		High:       high.Clone(),
		Top:        top.Currency,
		Bottom:     bottom.Currency,
		Settlement: settlement,
	}, nil
}

// RecordSplit books a settlement paid into the curve. No Asset moves.
func (pr *Pair) RecordSplit(s Shift) (undo func()) {
	return record(pr.CurrencyToAsset, new(big.Int), s.Settlement.ToBig())
}

// RecordMerge books a settlement paid out of the curve.
func (pr *Pair) RecordMerge(s Shift) (undo func()) {
	return record(pr.CurrencyToAsset, new(big.Int), new(big.Int).Neg(s.Settlement.ToBig()))
}

// RecordSell books a committed sale into AssetToCurrency's counters and
// returns the function that reverses it.
func (pr *Pair) RecordSell(q Quote) (undo func()) {
	return record(pr.AssetToCurrency, q.Asset.ToBig(), new(big.Int).Neg(q.Currency.ToBig()))
}

// RecordBuy books a committed purchase into CurrencyToAsset's counters and
// returns the function that reverses it.
func (pr *Pair) RecordBuy(q Quote) (undo func()) {
	return record(pr.CurrencyToAsset, new(big.Int).Neg(q.Asset.ToBig()), q.Currency.ToBig())
}

func record(p *Pool, delta0, delta1 *big.Int) func() {
	p.recordFlow(delta0, delta1)
	p.swaps++
	return func() {
		p.recordFlow(new(big.Int).Neg(delta0), new(big.Int).Neg(delta1))
		p.swaps--
	}
}

package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BpsDenominator is the denominator of a pair's fee.
const BpsDenominator = 10000

// Pair is a constant-product pool between two tokens. token0 sorts below
// token1 by address.
type Pair struct {
	token0   common.Address
	token1   common.Address
	reserve0 *uint256.Int
	reserve1 *uint256.Int
	feeBps   uint32
}

// PairState is a read-only copy of a pair.
type PairState struct {
	Token0   common.Address
	Token1   common.Address
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
	FeeBps   uint32
}

func (p *Pair) state() PairState {
	return PairState{
		Token0:   p.token0,
		Token1:   p.token1,
		Reserve0: p.reserve0.Clone(),
		Reserve1: p.reserve1.Clone(),
		FeeBps:   p.feeBps,
	}
}

// reserves returns the reserves ordered as (tokenIn, tokenOut).
func (p *Pair) reserves(tokenIn common.Address) (*uint256.Int, *uint256.Int) {
	if tokenIn == p.token0 {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

// amountOut applies x * y = k with the fee taken from the input:
// out = reserveOut * in' / (reserveIn * 10000 + in'), in' = in * (10000 - fee).
func (p *Pair) amountOut(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut := p.reserves(tokenIn)
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(uint64(BpsDenominator-p.feeBps)))
	if overflow {
		return nil, ErrMathOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(reserveOut, inWithFee)
	if overflow {
		return nil, ErrMathOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(BpsDenominator))
	if overflow {
		return nil, ErrMathOverflow
	}
	denominator.Add(denominator, inWithFee)
	return new(uint256.Int).Div(numerator, denominator), nil
}

// amountIn inverts amountOut, rounding up so the pair never loses value.
func (p *Pair) amountIn(tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut := p.reserves(tokenIn)
	if !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, ErrMathOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, uint256.NewInt(BpsDenominator)); overflow {
		return nil, ErrMathOverflow
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, uint256.NewInt(uint64(BpsDenominator-p.feeBps)))
	in := new(uint256.Int).Div(numerator, denominator)
	return in.AddUint64(in, 1), nil
}

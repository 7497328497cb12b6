package pool

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"curveLedger/internal/clmath"
	"curveLedger/internal/errcode"
)

var (
	ErrZeroAmount            = errcode.New(errcode.ZeroAmount, "pool: amount specified is zero")
	ErrPoolLocked            = errcode.New(errcode.PoolLocked, "pool: locked")
	ErrInvalidPriceLimit     = errcode.New(errcode.InvalidPriceLimit, "pool: price limit on wrong side of current price")
	ErrInsufficientLiquidity = errcode.New(errcode.InsufficientLiquidity, "pool: insufficient liquidity for exact output")
	ErrSettlementUnderflow   = errcode.New(errcode.MathOverflow, "pool: settlement underflow")
)

// CodeOf returns the stable code carried by err.
func CodeOf(err error) errcode.Code { return errcode.Of(err) }

// SwapParams describes one swap. ZeroForOne sells token0 (price falls).
// ExactInput selects whether Amount is the input or the desired output.
// A nil or zero SqrtPriceLimitX96 means the global price bound.
type SwapParams struct {
	ZeroForOne        bool
	ExactInput        bool
	Amount            *uint256.Int
	SqrtPriceLimitX96 *uint256.Int
	// FeeExempt prices the swap on the bare curve, ignoring the fee tier.
	FeeExempt bool

	// Callback runs after the swap is computed and before it is committed,
	// with the pool still locked. An error abandons the swap.
	Callback func(Result) error
}

// Result reports a swap's realized amounts and the pool state after it.
type Result struct {
	AmountIn     *uint256.Int // includes FeeAmount
	AmountOut    *uint256.Int
	FeeAmount    *uint256.Int
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
	Crossed      []int32
	// Partial is set when the swap stopped at the price limit or the global
	// bound before the specified amount was fully used.
	Partial bool
}

type swapState struct {
	remaining    *uint256.Int
	amountIn     *uint256.Int
	amountOut    *uint256.Int
	fee          *uint256.Int
	sqrtPriceX96 *uint256.Int
	tick         int32
	liquidity    *uint256.Int
	crossed      []int32
}

// Swap moves the pool along its curve. Nothing is written to the pool unless
// the whole swap, including the callback, succeeds.
func Swap(p *Pool, params SwapParams) (Result, error) {
	if params.Amount == nil || params.Amount.IsZero() {
		return Result{}, ErrZeroAmount
	}
	if !p.unlocked {
		return Result{}, ErrPoolLocked
	}

	explicitLimit := params.SqrtPriceLimitX96 != nil && !params.SqrtPriceLimitX96.IsZero()
	limit, err := priceLimit(p, params.ZeroForOne, params.SqrtPriceLimitX96)
	if err != nil {
		return Result{}, err
	}

	p.unlocked = false
	defer func() { p.unlocked = true }()

	feePips := p.feeTier
	if params.FeeExempt {
		feePips = 0
	}

	state := swapState{
		remaining:    params.Amount.Clone(),
		amountIn:     new(uint256.Int),
		amountOut:    new(uint256.Int),
		fee:          new(uint256.Int),
		sqrtPriceX96: p.sqrtPriceX96.Clone(),
		tick:         p.tick,
		liquidity:    p.liquidity.Clone(),
	}

	for !state.remaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		start := state.sqrtPriceX96

		tickNext, initialized := p.ticks.next(state.tick, params.ZeroForOne)
		if tickNext < clmath.MinTick {
			tickNext = clmath.MinTick
		} else if tickNext > clmath.MaxTick {
			tickNext = clmath.MaxTick
		}
		sqrtNext, err := clmath.GetSqrtRatioAtTick(tickNext)
		if err != nil {
			return Result{}, err
		}

		target := sqrtNext
		if (params.ZeroForOne && sqrtNext.Lt(limit)) || (!params.ZeroForOne && sqrtNext.Gt(limit)) {
			target = limit
		}

		step, err := clmath.ComputeSwapStep(state.sqrtPriceX96, target, state.liquidity, state.remaining, params.ExactInput, feePips)
		if err != nil {
			return Result{}, fmt.Errorf("swap step at tick %d: %w", state.tick, err)
		}
		state.sqrtPriceX96 = step.SqrtRatioNextX96

		spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
		if params.ExactInput {
			state.remaining.Sub(state.remaining, spent)
		} else {
			state.remaining.Sub(state.remaining, step.AmountOut)
		}
		state.amountIn.Add(state.amountIn, spent)
		state.amountOut.Add(state.amountOut, step.AmountOut)
		state.fee.Add(state.fee, step.FeeAmount)

		if state.sqrtPriceX96.Eq(sqrtNext) {
			if initialized {
				info := p.ticks.info[tickNext]
				net := info.LiquidityNet.Clone()
				if params.ZeroForOne {
					net.Neg(net)
				}
				liquidity, err := clmath.AddDelta(state.liquidity, net)
				if err != nil {
					return Result{}, fmt.Errorf("cross tick %d: %w", tickNext, err)
				}
				state.liquidity = liquidity
				state.crossed = append(state.crossed, tickNext)
			}
			if params.ZeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if !state.sqrtPriceX96.Eq(start) {
			tick, err := clmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return Result{}, err
			}
			state.tick = tick
		}
	}

	if !state.remaining.IsZero() && !params.ExactInput && !explicitLimit {
		return Result{}, ErrInsufficientLiquidity
	}

	result := Result{
		AmountIn:     state.amountIn,
		AmountOut:    state.amountOut,
		FeeAmount:    state.fee,
		SqrtPriceX96: state.sqrtPriceX96.Clone(),
		Tick:         state.tick,
		Liquidity:    state.liquidity.Clone(),
		Crossed:      state.crossed,
		Partial:      !state.remaining.IsZero(),
	}

	if params.Callback != nil {
		if err := params.Callback(result); err != nil {
			return Result{}, err
		}
	}

	p.sqrtPriceX96 = state.sqrtPriceX96
	p.tick = state.tick
	p.liquidity = state.liquidity
	for _, tick := range state.crossed {
		p.ticks.info[tick].Crossings++
	}
	in := state.amountIn.ToBig()
	out := new(big.Int).Neg(state.amountOut.ToBig())
	if params.ZeroForOne {
		p.recordFlow(in, out)
	} else {
		p.recordFlow(out, in)
	}
	p.swaps++

	return result, nil
}

func priceLimit(p *Pool, zeroForOne bool, requested *uint256.Int) (*uint256.Int, error) {
	if zeroForOne {
		if requested == nil || requested.IsZero() {
			return new(uint256.Int).AddUint64(clmath.MinSqrtRatio, 1), nil
		}
		if !requested.Lt(p.sqrtPriceX96) || !requested.Gt(clmath.MinSqrtRatio) {
			return nil, ErrInvalidPriceLimit
		}
		return requested.Clone(), nil
	}
	if requested == nil || requested.IsZero() {
		return new(uint256.Int).SubUint64(clmath.MaxSqrtRatio, 1), nil
	}
	if !requested.Gt(p.sqrtPriceX96) || !requested.Lt(clmath.MaxSqrtRatio) {
		return nil, ErrInvalidPriceLimit
	}
	return requested.Clone(), nil
}

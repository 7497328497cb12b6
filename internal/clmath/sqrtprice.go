package clmath

import "github.com/holiman/uint256"

// GetNextSqrtPriceFromAmount0RoundingUp moves the price by an amount of token0,
// rounding up so the pool never under-prices token0.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtPX96.Clone(), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
	if add {
		if !overflow {
			denominator, carry := new(uint256.Int).AddOverflow(numerator1, product)
			if !carry {
				return MulDivRoundingUp(numerator1, sqrtPX96, denominator)
			}
		}
		quotient := new(uint256.Int).Div(numerator1, sqrtPX96)
		denominator, carry := quotient.AddOverflow(quotient, amount)
		if carry {
			return nil, ErrMathOverflow
		}
		return DivRoundingUp(numerator1, denominator)
	}

	if overflow || !numerator1.Gt(product) {
		return nil, ErrPriceOutOfRange
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	next, err := MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if err != nil {
		return nil, err
	}
	if next.Gt(MaxUint160) {
		return nil, ErrPriceOutOfRange
	}
	return next, nil
}

// GetNextSqrtPriceFromAmount1RoundingDown moves the price by an amount of
// token1, rounding down.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := MulDiv(amount, Q96, liquidity)
		if err != nil {
			return nil, err
		}
		next, carry := new(uint256.Int).AddOverflow(sqrtPX96, quotient)
		if carry || next.Gt(MaxUint160) {
			return nil, ErrPriceOutOfRange
		}
		return next, nil
	}

	quotient, err := MulDivRoundingUp(amount, Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtPX96.Gt(quotient) {
		return nil, ErrPriceOutOfRange
	}
	return new(uint256.Int).Sub(sqrtPX96, quotient), nil
}

// GetNextSqrtPriceFromInput returns the price after adding amountIn of the
// input token.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrPriceOutOfRange
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after removing amountOut of
// the output token.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrPriceOutOfRange
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta returns the token0 amount between two prices for a given
// liquidity.
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Gt(b) {
		a, b = b, a
	}
	if a.IsZero() {
		return nil, ErrPriceOutOfRange
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)
	numerator2 := new(uint256.Int).Sub(b, a)

	if roundUp {
		inner, err := MulDivRoundingUp(numerator1, numerator2, b)
		if err != nil {
			return nil, err
		}
		return DivRoundingUp(inner, a)
	}
	inner, err := MulDiv(numerator1, numerator2, b)
	if err != nil {
		return nil, err
	}
	return inner.Div(inner, a), nil
}

// GetAmount1Delta returns the token1 amount between two prices for a given
// liquidity.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	a, b := sqrtRatioAX96, sqrtRatioBX96
	if a.Gt(b) {
		a, b = b, a
	}
	diff := new(uint256.Int).Sub(b, a)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

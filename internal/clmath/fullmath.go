package clmath

import "github.com/holiman/uint256"

// MulDiv returns floor(a*b/d) with a 512-bit intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a*b/d).
func MulDivRoundingUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		if z.Eq(maxUint256) {
			return nil, ErrMathOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// DivRoundingUp returns ceil(a/d).
func DivRoundingUp(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z := new(uint256.Int).Div(a, d)
	if !new(uint256.Int).Mod(a, d).IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}

// AddDelta applies a signed liquidity delta, stored as a two's-complement
// uint256, to an unsigned liquidity value bounded by uint128.
func AddDelta(x, delta *uint256.Int) (*uint256.Int, error) {
	if delta.Sign() < 0 {
		abs := new(uint256.Int).Neg(delta)
		if abs.Gt(x) {
			return nil, ErrMathOverflow
		}
		return new(uint256.Int).Sub(x, abs), nil
	}
	z := new(uint256.Int).Add(x, delta)
	if z.Gt(MaxUint128) {
		return nil, ErrMathOverflow
	}
	return z, nil
}

package clmath

import (
	"github.com/holiman/uint256"

	"curveLedger/internal/errcode"
)

const (
	// MinTick and MaxTick bound the tick space; 1.0001^tick spans the uint160 sqrt price range.
	MinTick int32 = -887272
	MaxTick int32 = 887272

	// FeePipsDenominator is the fee-tier unit: a tier of 3000 is 0.3%.
	FeePipsDenominator uint32 = 1_000_000

	resolution = 96
)

var (
	// Q96 is 2^96, the fixed-point unit of sqrt prices.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), resolution)

	// MinSqrtRatio is GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromHex("0xfffd8963efd1fc6a506488495d951d5263988d26")

	MaxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
	MaxUint160 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 160), 1)
	maxUint256 = new(uint256.Int).Not(new(uint256.Int))
)

var (
	ErrTickOutOfRange  = errcode.New(errcode.TickOutOfRange, "clmath: tick out of range")
	ErrPriceOutOfRange = errcode.New(errcode.PriceOutOfRange, "clmath: sqrt price out of range")
	ErrMathOverflow    = errcode.New(errcode.MathOverflow, "clmath: arithmetic overflow")
	ErrDivisionByZero  = errcode.New(errcode.MathOverflow, "clmath: division by zero")
	ErrZeroLiquidity   = errcode.New(errcode.InsufficientLiquidity, "clmath: zero liquidity")
)

package clmath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestGetSqrtRatioAtTickBounds(t *testing.T) {
	require := require.New(t)

	minRatio, err := GetSqrtRatioAtTick(MinTick)
	require.NoError(err)
	require.True(minRatio.Eq(MinSqrtRatio), "min ratio %s", minRatio.Dec())

	maxRatio, err := GetSqrtRatioAtTick(MaxTick)
	require.NoError(err)
	require.True(maxRatio.Eq(MaxSqrtRatio), "max ratio %s", maxRatio.Dec())

	one, err := GetSqrtRatioAtTick(0)
	require.NoError(err)
	require.True(one.Eq(Q96))

	_, err = GetSqrtRatioAtTick(MaxTick + 1)
	require.ErrorIs(err, ErrTickOutOfRange)
	_, err = GetSqrtRatioAtTick(MinTick - 1)
	require.ErrorIs(err, ErrTickOutOfRange)
}

func TestGetSqrtRatioAtTickMonotonic(t *testing.T) {
	require := require.New(t)

	prev, err := GetSqrtRatioAtTick(-1000)
	require.NoError(err)
	for tick := int32(-999); tick <= 1000; tick++ {
		next, err := GetSqrtRatioAtTick(tick)
		require.NoError(err)
		require.True(next.Gt(prev), "tick %d", tick)
		prev = next
	}
}

func TestGetTickAtSqrtRatioInverse(t *testing.T) {
	require := require.New(t)

	for _, tick := range []int32{MinTick, -500000, -60, -1, 0, 1, 60, 200, 500000, MaxTick - 1} {
		ratio, err := GetSqrtRatioAtTick(tick)
		require.NoError(err)

		got, err := GetTickAtSqrtRatio(ratio)
		require.NoError(err)
		require.Equal(tick, got)

		got, err = GetTickAtSqrtRatio(new(uint256.Int).AddUint64(ratio, 1))
		require.NoError(err)
		require.Equal(tick, got)
	}

	_, err := GetTickAtSqrtRatio(MaxSqrtRatio)
	require.ErrorIs(err, ErrPriceOutOfRange)
	_, err = GetTickAtSqrtRatio(new(uint256.Int).SubUint64(MinSqrtRatio, 1))
	require.ErrorIs(err, ErrPriceOutOfRange)
}

func TestAmountDeltas(t *testing.T) {
	require := require.New(t)

	liquidity := uint256.NewInt(1_000_000_000_000_000_000)
	double := new(uint256.Int).Lsh(Q96, 1)

	amount1, err := GetAmount1Delta(Q96, double, liquidity, false)
	require.NoError(err)
	require.True(amount1.Eq(liquidity))

	amount0, err := GetAmount0Delta(Q96, double, liquidity, true)
	require.NoError(err)
	require.Equal(uint64(500_000_000_000_000_000), amount0.Uint64())

	// ordering of the two prices does not matter
	swapped, err := GetAmount0Delta(double, Q96, liquidity, true)
	require.NoError(err)
	require.True(swapped.Eq(amount0))
}

func TestComputeSwapStepExactInUncapped(t *testing.T) {
	require := require.New(t)

	target, err := GetSqrtRatioAtTick(6000)
	require.NoError(err)
	liquidity := uint256.NewInt(2_000_000_000_000_000_000)
	amount := uint256.NewInt(1_000_000_000_000_000)

	step, err := ComputeSwapStep(Q96, target, liquidity, amount, true, 3000)
	require.NoError(err)
	require.True(step.SqrtRatioNextX96.Lt(target))
	require.True(step.SqrtRatioNextX96.Gt(Q96))

	spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
	require.True(spent.Eq(amount), "spent %s", spent.Dec())
	require.False(step.AmountOut.IsZero())
}

func TestComputeSwapStepExactInCapped(t *testing.T) {
	require := require.New(t)

	target, err := GetSqrtRatioAtTick(10)
	require.NoError(err)
	liquidity := uint256.NewInt(1_000_000_000)
	amount := uint256.NewInt(1_000_000_000_000_000_000)

	step, err := ComputeSwapStep(Q96, target, liquidity, amount, true, 500)
	require.NoError(err)
	require.True(step.SqrtRatioNextX96.Eq(target))

	spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
	require.True(spent.Lt(amount))

	wantFee, err := MulDivRoundingUp(step.AmountIn, uint256.NewInt(500), uint256.NewInt(uint64(FeePipsDenominator-500)))
	require.NoError(err)
	require.True(step.FeeAmount.Eq(wantFee))
}

func TestComputeSwapStepExactOut(t *testing.T) {
	require := require.New(t)

	target, err := GetSqrtRatioAtTick(-6000)
	require.NoError(err)
	liquidity := uint256.NewInt(2_000_000_000_000_000_000)
	amount := uint256.NewInt(1_000_000_000_000_000)

	step, err := ComputeSwapStep(Q96, target, liquidity, amount, false, 0)
	require.NoError(err)
	require.True(step.SqrtRatioNextX96.Gt(target))
	require.True(step.AmountOut.Eq(amount))
	require.True(step.FeeAmount.IsZero())
	require.False(step.AmountIn.IsZero())
}

// The price moves from 1 to sqrt(1.01) with 2e18 liquidity and a 600 pip fee,
// capped at the target in both modes.
func TestComputeSwapStepCappedOneForZero(t *testing.T) {
	require := require.New(t)

	target := uint256.MustFromDecimal("79623317895830914510639640423")
	liquidity := uint256.NewInt(2_000_000_000_000_000_000)
	amount := uint256.NewInt(1_000_000_000_000_000_000)

	for _, exactIn := range []bool{true, false} {
		step, err := ComputeSwapStep(Q96, target, liquidity, amount, exactIn, 600)
		require.NoError(err)
		require.True(step.SqrtRatioNextX96.Eq(target), "exactIn %v", exactIn)
		require.Equal("9975124224178055", step.AmountIn.Dec(), "exactIn %v", exactIn)
		require.Equal("9925619580021728", step.AmountOut.Dec(), "exactIn %v", exactIn)
		require.Equal("5988667735148", step.FeeAmount.Dec(), "exactIn %v", exactIn)
	}
}

func TestComputeSwapStepZeroLiquidity(t *testing.T) {
	require := require.New(t)

	target, err := GetSqrtRatioAtTick(120)
	require.NoError(err)

	step, err := ComputeSwapStep(Q96, target, new(uint256.Int), uint256.NewInt(1000), true, 3000)
	require.NoError(err)
	require.True(step.SqrtRatioNextX96.Eq(target))
	require.True(step.AmountIn.IsZero())
	require.True(step.AmountOut.IsZero())
	require.True(step.FeeAmount.IsZero())
}

func TestAddDelta(t *testing.T) {
	require := require.New(t)

	base := uint256.NewInt(100)
	up, err := AddDelta(base, uint256.NewInt(50))
	require.NoError(err)
	require.Equal(uint64(150), up.Uint64())

	down, err := AddDelta(base, new(uint256.Int).Neg(uint256.NewInt(40)))
	require.NoError(err)
	require.Equal(uint64(60), down.Uint64())

	_, err = AddDelta(base, new(uint256.Int).Neg(uint256.NewInt(101)))
	require.ErrorIs(err, ErrMathOverflow)

	_, err = AddDelta(MaxUint128, uint256.NewInt(1))
	require.ErrorIs(err, ErrMathOverflow)
}

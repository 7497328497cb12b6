package main

import (
	"testing"

	"github.com/holiman/uint256"

	"curveLedger/internal/clmath"
	"curveLedger/internal/pool"
)

func testPair(t *testing.T) *pool.Pair {
	t.Helper()
	amount := new(uint256.Int).Mul(uint256.NewInt(1000), uint256.NewInt(1_000_000_000_000_000_000))
	pair, err := pool.NewPair(pool.Config{
		FeeTier:             3000,
		TickSpacing:         60,
		InitialSqrtPriceX96: clmath.Q96.Clone(),
		Placements:          []pool.Placement{{TickLower: -600, TickUpper: 600, Amount: amount}},
	})
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	return pair
}

func TestQuoteAmount(t *testing.T) {
	pair := testPair(t)
	amount := uint256.NewInt(1_000_000_000_000_000_000)

	q := quoteAmount(pair, new(uint256.Int), amount, 100)
	if q.Error != "" {
		t.Fatalf("unexpected error %s", q.Error)
	}
	gross, _ := uint256.FromDecimal(q.OpenGross)
	fee, _ := uint256.FromDecimal(q.OpenFee)
	net, _ := uint256.FromDecimal(q.OpenNet)
	if gross.IsZero() || !new(uint256.Int).Add(fee, net).Eq(gross) {
		t.Fatalf("open legs do not add up: %+v", q)
	}
	if want := new(uint256.Int).Div(gross, uint256.NewInt(100)); !fee.Eq(want) {
		t.Fatalf("fee %s, want %s", fee, want)
	}
	// the fee tier does not enter curve quotes, so redeem costs the open
	// proceeds give or take rounding
	if q.OpenGross != "1001001001001001001" || q.RedeemCost != "1001001001001001002" {
		t.Fatalf("open gross %s, redeem cost %s", q.OpenGross, q.RedeemCost)
	}
	if q.LeveragedAsset != "999000999000999000" || q.LeveragedPay != "10000000000000001" {
		t.Fatalf("leveraged asset %s, pay %s", q.LeveragedAsset, q.LeveragedPay)
	}
}

func TestQuoteAmountReportsFailure(t *testing.T) {
	q := quoteAmount(testPair(t), new(uint256.Int), new(uint256.Int), 0)
	if q.Error == "" || q.OpenGross != "" {
		t.Fatalf("expected open failure, got %+v", q)
	}
}

func TestRedactDSN(t *testing.T) {
	if redactDSN("") != "" || redactDSN("postgres://user:pw@host/db") != "***" {
		t.Fatalf("dsn not redacted")
	}
}

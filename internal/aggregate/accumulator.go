package aggregate

import (
	"fmt"
	"math/big"

	"curveLedger/internal/model"
)

// Accumulator holds aggregate values for one asset window.
type Accumulator struct {
	Asset              string
	WindowStart        uint64
	WindowEnd          uint64
	OpCounts           map[string]uint64
	FailedCount        uint64
	Minted             *big.Int
	Burned             *big.Int
	Fees               *big.Int
	CollateralLocked   *big.Int
	CollateralReleased *big.Int
	FirstSeq           uint64
	LastSeq            uint64
}

func NewAccumulator(asset string, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		Asset:              asset,
		WindowStart:        windowStart,
		WindowEnd:          windowEnd,
		OpCounts:           make(map[string]uint64),
		Minted:             big.NewInt(0),
		Burned:             big.NewInt(0),
		Fees:               big.NewInt(0),
		CollateralLocked:   big.NewInt(0),
		CollateralReleased: big.NewInt(0),
	}
}

// AddEvent folds one ledger event into the window. Rejected operations only
// count toward FailedCount.
func (a *Accumulator) AddEvent(event model.LedgerEvent) error {
	if a.FirstSeq == 0 || event.Seq < a.FirstSeq {
		a.FirstSeq = event.Seq
	}
	if event.Seq > a.LastSeq {
		a.LastSeq = event.Seq
	}
	if event.Failed() {
		a.FailedCount++
		return nil
	}

	minted, err := parseBigInt(event.Minted)
	if err != nil {
		return fmt.Errorf("minted: %w", err)
	}
	burned, err := parseBigInt(event.Burned)
	if err != nil {
		return fmt.Errorf("burned: %w", err)
	}
	fee, err := parseBigInt(event.Fee)
	if err != nil {
		return fmt.Errorf("fee: %w", err)
	}
	delta, err := parseBigInt(event.CollateralDelta)
	if err != nil {
		return fmt.Errorf("collateral delta: %w", err)
	}

	a.OpCounts[event.Op]++
	a.Minted.Add(a.Minted, minted)
	a.Burned.Add(a.Burned, burned)
	a.Fees.Add(a.Fees, fee)
	switch delta.Sign() {
	case 1:
		a.CollateralLocked.Add(a.CollateralLocked, delta)
	case -1:
		absAdd(a.CollateralReleased, delta)
	}
	return nil
}

// NetCollateral is locked minus released.
func (a *Accumulator) NetCollateral() *big.Int {
	return new(big.Int).Sub(a.CollateralLocked, a.CollateralReleased)
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	abs := new(big.Int).Abs(value)
	target.Add(target, abs)
}

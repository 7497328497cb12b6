package pool

import (
	"github.com/google/btree"
	"github.com/holiman/uint256"

	"curveLedger/internal/clmath"
	"curveLedger/internal/errcode"
)

var ErrLiquidityGrossOverflow = errcode.New(errcode.LiquidityGrossOverflow, "pool: liquidity gross exceeds per-tick cap")

const tickIndexDegree = 16

// TickInfo is the per-tick liquidity state. LiquidityNet is a signed value
// held in two's complement.
type TickInfo struct {
	LiquidityGross *uint256.Int
	LiquidityNet   *uint256.Int
	Initialized    bool
	Crossings      uint64
}

func (t TickInfo) clone() TickInfo {
	return TickInfo{
		LiquidityGross: t.LiquidityGross.Clone(),
		LiquidityNet:   t.LiquidityNet.Clone(),
		Initialized:    t.Initialized,
		Crossings:      t.Crossings,
	}
}

// tickTable keeps initialized ticks in an ordered index for next-tick lookups.
type tickTable struct {
	index *btree.BTreeG[int32]
	info  map[int32]*TickInfo
}

func newTickTable() *tickTable {
	return &tickTable{
		index: btree.NewG(tickIndexDegree, func(a, b int32) bool { return a < b }),
		info:  make(map[int32]*TickInfo),
	}
}

// update adds liquidity at a boundary tick. Lower boundaries add to
// liquidityNet and upper boundaries subtract from it.
func (t *tickTable) update(tick int32, delta *uint256.Int, upper bool, maxLiquidity *uint256.Int) error {
	info, ok := t.info[tick]
	if !ok {
		info = &TickInfo{LiquidityGross: new(uint256.Int), LiquidityNet: new(uint256.Int)}
	}

	gross, err := clmath.AddDelta(info.LiquidityGross, delta)
	if err != nil {
		return ErrLiquidityGrossOverflow
	}
	if gross.Gt(maxLiquidity) {
		return ErrLiquidityGrossOverflow
	}

	net := new(uint256.Int)
	if upper {
		net.Sub(info.LiquidityNet, delta)
	} else {
		net.Add(info.LiquidityNet, delta)
	}

	info.LiquidityGross = gross
	info.LiquidityNet = net
	if !info.Initialized {
		info.Initialized = true
		t.index.ReplaceOrInsert(tick)
	}
	t.info[tick] = info
	return nil
}

// next returns the nearest initialized tick at or below tick when lte is set,
// or strictly above tick otherwise. When none exists it returns the global
// bound in that direction with initialized=false.
func (t *tickTable) next(tick int32, lte bool) (int32, bool) {
	var (
		found int32
		ok    bool
	)
	if lte {
		t.index.DescendLessOrEqual(tick, func(item int32) bool {
			found, ok = item, true
			return false
		})
		if !ok {
			return clmath.MinTick, false
		}
		return found, true
	}

	if tick >= clmath.MaxTick {
		return clmath.MaxTick, false
	}
	t.index.AscendGreaterOrEqual(tick+1, func(item int32) bool {
		found, ok = item, true
		return false
	})
	if !ok {
		return clmath.MaxTick, false
	}
	return found, true
}

func (t *tickTable) get(tick int32) (TickInfo, bool) {
	info, ok := t.info[tick]
	if !ok {
		return TickInfo{}, false
	}
	return info.clone(), true
}

func (t *tickTable) ticks() []int32 {
	out := make([]int32, 0, t.index.Len())
	t.index.Ascend(func(item int32) bool {
		out = append(out, item)
		return true
	})
	return out
}

// clone shares nothing mutable with the source. The ordered index is copied
// lazily by the btree.
func (t *tickTable) clone() *tickTable {
	info := make(map[int32]*TickInfo, len(t.info))
	for tick, entry := range t.info {
		copied := entry.clone()
		info[tick] = &copied
	}
	return &tickTable{index: t.index.Clone(), info: info}
}

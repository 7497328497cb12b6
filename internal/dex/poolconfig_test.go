package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"curveLedger/internal/clmath"
	"curveLedger/internal/model"
)

var (
	testPool   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	testToken0 = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	testToken1 = common.HexToAddress("0x0000000000000000000000000000000000000b00")
)

// fakeChain answers eth_call by method selector.
type fakeChain struct {
	responses map[[4]byte][]byte
	blocks    []*big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{responses: make(map[[4]byte][]byte)}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.blocks = append(f.blocks, blockNumber)
	if len(msg.Data) < 4 {
		return nil, errors.New("short call data")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	resp, ok := f.responses[sel]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return resp, nil
}

func (f *fakeChain) set(t *testing.T, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	f.responses[sel] = out
}

func livePool(t *testing.T, sqrt *big.Int, tick int64) *fakeChain {
	t.Helper()
	parsed, err := PoolABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	f := newFakeChain()
	f.set(t, parsed, "token0", testToken0)
	f.set(t, parsed, "token1", testToken1)
	f.set(t, parsed, "fee", big.NewInt(3000))
	f.set(t, parsed, "tickSpacing", big.NewInt(60))
	f.set(t, parsed, "liquidity", big.NewInt(5_000_000_000))
	f.set(t, parsed, "slot0", sqrt, big.NewInt(tick), uint16(1), uint16(1), uint16(1), uint8(0), true)
	return f
}

func TestPoolConfigCentersPlacement(t *testing.T) {
	meta := model.PoolMeta{
		Fee:         3000,
		TickSpacing: 60,
		Liquidity:   "1000000",
		Slot0:       &model.PoolSlot0{SqrtPriceX96: clmath.Q96.Dec()},
	}
	cfg, err := PoolConfig(meta, ImportOptions{WidthSpacings: 2})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if len(cfg.Placements) != 1 {
		t.Fatalf("placements %d, want 1", len(cfg.Placements))
	}
	p := cfg.Placements[0]
	if p.TickLower != -120 || p.TickUpper != 180 {
		t.Fatalf("range [%d,%d), want [-120,180)", p.TickLower, p.TickUpper)
	}
	if p.Amount.Uint64() != 1_000_000 {
		t.Fatalf("amount %s, want 1000000", p.Amount.Dec())
	}
	if !cfg.InitialSqrtPriceX96.Eq(clmath.Q96) {
		t.Fatalf("sqrt price changed: %s", cfg.InitialSqrtPriceX96.Dec())
	}
}

func TestPoolConfigNegativeTickRoundsDown(t *testing.T) {
	sqrt, err := clmath.GetSqrtRatioAtTick(-61)
	if err != nil {
		t.Fatalf("sqrt at tick: %v", err)
	}
	meta := model.PoolMeta{
		Fee:         3000,
		TickSpacing: 60,
		Liquidity:   "1000",
		Slot0:       &model.PoolSlot0{SqrtPriceX96: sqrt.Dec()},
	}
	cfg, err := PoolConfig(meta, ImportOptions{})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	if p := cfg.Placements[0]; p.TickLower != -120 || p.TickUpper != -60 {
		t.Fatalf("range [%d,%d), want [-120,-60)", p.TickLower, p.TickUpper)
	}
}

func TestPoolConfigInvert(t *testing.T) {
	sqrt, err := clmath.GetSqrtRatioAtTick(600)
	if err != nil {
		t.Fatalf("sqrt at tick: %v", err)
	}
	meta := model.PoolMeta{
		Fee:         500,
		TickSpacing: 10,
		Liquidity:   "1000",
		Slot0:       &model.PoolSlot0{SqrtPriceX96: sqrt.Dec()},
	}
	cfg, err := PoolConfig(meta, ImportOptions{Invert: true, WidthSpacings: 1})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	tick, err := clmath.GetTickAtSqrtRatio(cfg.InitialSqrtPriceX96)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tick < -601 || tick > -600 {
		t.Fatalf("inverted tick %d, want -601 or -600", tick)
	}
	p := cfg.Placements[0]
	if p.TickLower > tick || tick >= p.TickUpper || p.TickUpper-p.TickLower != 30 {
		t.Fatalf("range [%d,%d) does not hold tick %d", p.TickLower, p.TickUpper, tick)
	}
}

func TestPoolConfigRejects(t *testing.T) {
	good := model.PoolMeta{Fee: 3000, TickSpacing: 60, Liquidity: "1000", Slot0: &model.PoolSlot0{SqrtPriceX96: clmath.Q96.Dec()}}
	cases := map[string]func(m *model.PoolMeta){
		"no slot0":        func(m *model.PoolMeta) { m.Slot0 = nil },
		"zero liquidity":  func(m *model.PoolMeta) { m.Liquidity = "0" },
		"bad decimal":     func(m *model.PoolMeta) { m.Liquidity = "12x" },
		"unsupported fee": func(m *model.PoolMeta) { m.Fee = 2500 },
		"misaligned":      func(m *model.PoolMeta) { m.TickSpacing = 50 },
		"price below min": func(m *model.PoolMeta) { m.Slot0 = &model.PoolSlot0{SqrtPriceX96: "1"} },
	}
	for name, mutate := range cases {
		meta := good
		mutate(&meta)
		if _, err := PoolConfig(meta, ImportOptions{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := PoolConfig(good, ImportOptions{WidthSpacings: -1}); err == nil {
		t.Fatalf("expected error for negative width")
	}
}

func TestPlacementAroundClampsToUsableTicks(t *testing.T) {
	lower, upper := placementAround(887000, 60, 10)
	if lower != 886380 || upper != 887220 {
		t.Fatalf("range [%d,%d), want [886380,887220)", lower, upper)
	}
	lower, upper = placementAround(-887000, 60, 10)
	if lower != -887220 || upper != -886380 {
		t.Fatalf("range [%d,%d), want [-887220,-886380)", lower, upper)
	}
}

func TestImportPool(t *testing.T) {
	sqrt, err := clmath.GetSqrtRatioAtTick(-1200)
	if err != nil {
		t.Fatalf("sqrt at tick: %v", err)
	}
	ctx := context.Background()

	f := livePool(t, sqrt.ToBig(), -1200)
	cfg, meta, err := ImportPool(ctx, f, testPool, testToken0, 123, 5, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if meta.Fee != 3000 || meta.TickSpacing != 60 || meta.Liquidity != "5000000000" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if meta.Slot0 == nil || meta.Slot0.Tick != -1200 {
		t.Fatalf("unexpected slot0 %+v", meta.Slot0)
	}
	if !cfg.InitialSqrtPriceX96.Eq(sqrt) {
		t.Fatalf("sqrt %s, want %s", cfg.InitialSqrtPriceX96.Dec(), sqrt.Dec())
	}
	if p := cfg.Placements[0]; p.TickLower != -1500 || p.TickUpper != -840 {
		t.Fatalf("range [%d,%d), want [-1500,-840)", p.TickLower, p.TickUpper)
	}
	if last := f.blocks[len(f.blocks)-1]; last == nil || last.Uint64() != 123 {
		t.Fatalf("live fields not read at block 123: %v", last)
	}

	inverted, _, err := ImportPool(ctx, livePool(t, sqrt.ToBig(), -1200), testPool, testToken1, 0, 5, nil)
	if err != nil {
		t.Fatalf("import inverted: %v", err)
	}
	tick, err := clmath.GetTickAtSqrtRatio(inverted.InitialSqrtPriceX96)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if tick < 1199 || tick > 1200 {
		t.Fatalf("inverted tick %d, want about 1200", tick)
	}

	_, _, err = ImportPool(ctx, livePool(t, sqrt.ToBig(), -1200), testPool, testPool, 0, 5, nil)
	if !errors.Is(err, ErrAssetNotInPool) {
		t.Fatalf("expected ErrAssetNotInPool, got %v", err)
	}
}

func TestFetchTokenMeta(t *testing.T) {
	stringABI, err := erc20StringABI.get()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	f := newFakeChain()
	f.set(t, stringABI, "decimals", uint8(6))
	f.set(t, stringABI, "symbol", "USDC")
	meta, err := FetchTokenMeta(context.Background(), f, testToken0, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" || meta.Name != "" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	var sym [32]byte
	copy(sym[:], "MKR")
	f = newFakeChain()
	f.set(t, stringABI, "decimals", uint8(18))
	f.set(t, bytes32ABI, "symbol", sym)
	cache := NewTokenMetaCache()
	meta = cache.Load(context.Background(), f, testToken1, nil)
	if meta.Symbol != "MKR" || meta.Decimals != 18 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if cached, ok := cache.Get(testToken1); !ok || cached.Symbol != "MKR" {
		t.Fatalf("metadata not cached")
	}

	if _, err := FetchTokenMeta(context.Background(), newFakeChain(), testToken0, nil); err == nil {
		t.Fatalf("expected error without decimals")
	}
}

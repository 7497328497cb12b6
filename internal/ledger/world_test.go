package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"curveLedger/internal/clmath"
	"curveLedger/internal/exchange"
	"curveLedger/internal/nft"
	"curveLedger/internal/pool"
	"curveLedger/internal/state"
	"curveLedger/internal/token"
)

var (
	ledgerAddr   = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	admin        = common.HexToAddress("0x000000000000000000000000000000000000ad00")
	funder       = common.HexToAddress("0x000000000000000000000000000000000000f000")
	provider     = common.HexToAddress("0x000000000000000000000000000000000000f001")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol        = common.HexToAddress("0x000000000000000000000000000000000000ca01")
	routerAddr   = common.HexToAddress("0x000000000000000000000000000000000000e0e0")
	sinkAddr     = common.HexToAddress("0x000000000000000000000000000000000000fee0")
	currencyAddr = common.HexToAddress("0x0000000000000000000000000000000000001000")
	assetAddr    = common.HexToAddress("0x0000000000000000000000000000000000002000")
	asset2Addr   = common.HexToAddress("0x0000000000000000000000000000000000003000")
	otherAddr    = common.HexToAddress("0x0000000000000000000000000000000000004000")
)

func eth(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Sub(b, a)
	}
	return new(uint256.Int).Sub(a, b)
}

type worldOpts struct {
	feeTier uint32
	feeRate uint32
	// market reserves in whole tokens; zero leaves the market unset
	marketAsset    uint64
	marketCurrency uint64
	metrics        *Metrics
	wrapExchange   func(*exchange.Router) Exchange
}

type world struct {
	ctx      context.Context
	journal  *state.Journal
	currency *token.ERC20
	asset    *token.ERC20
	asset2   *token.ERC20
	other    *token.ERC20
	registry *nft.Registry
	sink     *token.Sink
	router   *exchange.Router
	ledger   *Ledger
	cfg      pool.Config
}

func testPoolConfig(t *testing.T, feeTier uint32) pool.Config {
	t.Helper()
	spacing, ok := pool.MinTickSpacing(feeTier)
	require.True(t, ok)
	if 60%spacing == 0 {
		spacing = 60
	}
	return pool.Config{
		FeeTier:             feeTier,
		TickSpacing:         spacing,
		InitialSqrtPriceX96: clmath.Q96.Clone(),
		Placements: []pool.Placement{
			{TickLower: -600, TickUpper: 600, Amount: eth(1000)},
			{TickLower: 0, TickUpper: 1200, Amount: eth(2000)},
			{TickLower: 600, TickUpper: 1800, Amount: eth(3000)},
		},
	}
}

func newWorld(t *testing.T, opts worldOpts) *world {
	t.Helper()
	require := require.New(t)
	ctx := context.Background()
	j := state.NewJournal()

	w := &world{
		ctx:      ctx,
		journal:  j,
		currency: token.NewERC20(currencyAddr, "CUR", 18, j),
		asset:    token.NewERC20(assetAddr, "AST", 18, j),
		asset2:   token.NewERC20(asset2Addr, "AS2", 18, j),
		other:    token.NewERC20(otherAddr, "OTH", 18, j),
		registry: nft.NewRegistry(ledgerAddr, j),
		sink:     token.NewSink(sinkAddr, j),
		router:   exchange.NewRouter(routerAddr, j),
		cfg:      testPoolConfig(t, opts.feeTier),
	}
	for _, tok := range []*token.ERC20{w.currency, w.asset, w.asset2, w.other} {
		tok.AddMinter(funder)
		tok.AddMinter(ledgerAddr)
		w.router.RegisterToken(tok)
		for _, holder := range []common.Address{alice, bob, carol} {
			require.NoError(tok.Mint(ctx, funder, holder, eth(1000)))
			require.NoError(tok.Approve(ctx, holder, ledgerAddr, token.MaxAllowance))
			require.NoError(tok.Approve(ctx, holder, routerAddr, token.MaxAllowance))
		}
		require.NoError(tok.Mint(ctx, funder, provider, eth(100_000)))
		require.NoError(tok.Approve(ctx, provider, routerAddr, token.MaxAllowance))
	}
	require.NoError(w.router.AddLiquidity(ctx, provider, currencyAddr, otherAddr, eth(10_000), eth(20_000), 30))

	var market Exchange
	if opts.marketAsset > 0 {
		require.NoError(w.router.AddLiquidity(ctx, provider, assetAddr, currencyAddr, eth(opts.marketAsset), eth(opts.marketCurrency), 30))
		market = w.router
	}
	var ex Exchange = w.router
	if opts.wrapExchange != nil {
		ex = opts.wrapExchange(w.router)
	}

	pools, err := pool.NewRegistry(w.cfg)
	require.NoError(err)
	w.ledger, err = New(Config{
		Address:  ledgerAddr,
		Admin:    admin,
		Currency: w.currency,
		Registry: w.registry,
		Pools:    pools,
		FeeSink:  w.sink,
		FeeRate:  opts.feeRate,
		Exchange: ex,
		Market:   market,
		Journal:  j,
		Metrics:  opts.metrics,
		Clock:    func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(err)
	require.NoError(w.ledger.RegisterAsset(ctx, admin, w.asset, 0))
	require.NoError(w.ledger.RegisterAsset(ctx, admin, w.asset2, 0))
	w.ledger.DrainEvents()
	return w
}

// pair is an untouched pool pair with the world's config, for expected values.
func (w *world) pair(t *testing.T) *pool.Pair {
	t.Helper()
	pr, err := pool.NewPair(w.cfg)
	require.NoError(t, err)
	return pr
}

func (w *world) open(t *testing.T, caller common.Address, amount *uint256.Int) OpenResult {
	t.Helper()
	res, err := w.ledger.Open(w.ctx, caller, assetAddr, amount, OutputSpec{})
	require.NoError(t, err)
	return res
}

// snapshot captures the state an operation could touch.
type snapshot struct {
	supply       *uint256.Int
	aliceCur     *uint256.Int
	aliceAsset   *uint256.Int
	bobCur       *uint256.Int
	bobAsset     *uint256.Int
	ledgerAsset  *uint256.Int
	ledgerCur    *uint256.Int
	sinkCur      *uint256.Int
	aliceOther   *uint256.Int
	positions    []Position
	ledgerSupply Supply
	swaps        uint64
}

func (w *world) snapshot() snapshot {
	ps, _ := w.ledger.PoolState(assetAddr)
	return snapshot{
		supply:       w.currency.TotalSupply(),
		aliceCur:     w.currency.BalanceOf(alice),
		aliceAsset:   w.asset.BalanceOf(alice),
		bobCur:       w.currency.BalanceOf(bob),
		bobAsset:     w.asset.BalanceOf(bob),
		ledgerAsset:  w.asset.BalanceOf(ledgerAddr),
		ledgerCur:    w.currency.BalanceOf(ledgerAddr),
		sinkCur:      w.currency.BalanceOf(sinkAddr),
		aliceOther:   w.other.BalanceOf(alice),
		positions:    append(w.ledger.PositionsOfOwner(alice), w.ledger.PositionsOfOwner(bob)...),
		ledgerSupply: w.ledger.Supply(),
		swaps:        ps.CurrencyToAsset.Swaps + ps.AssetToCurrency.Swaps,
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

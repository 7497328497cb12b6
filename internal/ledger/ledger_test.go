package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"curveLedger/internal/errcode"
	"curveLedger/internal/exchange"
	"curveLedger/internal/model"
	"curveLedger/internal/pool"
	"curveLedger/internal/token"
)

var tolerance = uint256.NewInt(100)

func TestOpenPaysPinnedAmountLessFee(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100})
	amount := eth(5)

	// the three-placement curve starting at price 1, priced fee-exempt
	gross := uint256.MustFromDecimal("5008347245409015025")
	wantFee := uint256.MustFromDecimal("50083472454090150")
	fee, err := FeeOf(gross, 100)
	require.NoError(err)
	require.Equal(wantFee, fee)

	before := w.snapshot()
	res := w.open(t, alice, amount)

	require.Equal(uint64(1), res.Position.TokenID)
	require.Equal(amount, res.Position.Amount)
	require.Equal(gross, res.Gross)
	require.Equal(wantFee, res.Fee)
	net := uint256.MustFromDecimal("4958263772954924875")
	require.Equal(net, res.AmountOut)

	require.Equal(new(uint256.Int).Add(before.aliceCur, net), w.currency.BalanceOf(alice))
	require.Equal(new(uint256.Int).Sub(before.aliceAsset, amount), w.asset.BalanceOf(alice))
	require.Equal(wantFee, w.currency.BalanceOf(sinkAddr))
	require.Equal(wantFee, w.sink.Received(currencyAddr))
	require.Equal(amount, w.asset.BalanceOf(ledgerAddr))
	require.Equal(new(uint256.Int).Add(before.supply, gross), w.currency.TotalSupply())

	supply := w.ledger.Supply()
	require.Equal(gross, supply.Minted)
	require.True(supply.Burned.IsZero())
	require.Equal(wantFee, supply.Fees)

	owner, err := w.registry.OwnerOf(1)
	require.NoError(err)
	require.Equal(alice, owner)
	require.NoError(w.ledger.CheckConservation(assetAddr))

	ps, err := w.ledger.PoolState(assetAddr)
	require.NoError(err)
	require.Equal(uint64(1), ps.AssetToCurrency.Swaps)
	require.Equal(amount.ToBig(), ps.AssetToCurrency.Balance0)
}

func TestGrowMatchesSingleOpen(t *testing.T) {
	require := require.New(t)
	a, b := eth(2), eth(3)

	split := newWorld(t, worldOpts{})
	first := split.open(t, alice, a)
	second, err := split.ledger.Grow(split.ctx, alice, first.Position.TokenID, b, OutputSpec{})
	require.NoError(err)
	require.Equal(eth(5), second.Position.Amount)

	whole := newWorld(t, worldOpts{})
	once := whole.open(t, alice, eth(5))

	sum := new(uint256.Int).Add(first.Gross, second.Gross)
	require.True(absDiff(sum, once.Gross).Lt(tolerance), "sum %s, single %s", sum.Dec(), once.Gross.Dec())
	// later segments price higher on the curve
	require.True(second.Gross.Gt(first.Gross))
	require.NoError(split.ledger.CheckConservation(assetAddr))
}

func TestOpenRedeemRoundTrip(t *testing.T) {
	require := require.New(t)
	for _, tier := range []uint32{0, 500, 3000, 10000} {
		for _, rate := range []uint32{0, 100} {
			w := newWorld(t, worldOpts{feeTier: tier, feeRate: rate})
			amount := eth(7)
			before := w.snapshot()

			opened := w.open(t, alice, amount)
			require.Equal("7016371533578349482", opened.Gross.Dec(), "tier %d", tier)
			sinkAfterOpen := w.currency.BalanceOf(sinkAddr)

			redeemed, err := w.ledger.Redeem(w.ctx, alice, opened.Position.TokenID, amount, nil, InputSpec{})
			require.NoError(err)
			require.True(redeemed.Destroyed)
			require.True(redeemed.Position.Amount.IsZero())
			require.Equal("7016371533578349483", redeemed.AmountPaid.Dec(), "tier %d", tier)

			// redeem charges nothing beyond the curve cost
			require.Equal(sinkAfterOpen, w.currency.BalanceOf(sinkAddr), "tier %d rate %d", tier, rate)
			require.True(absDiff(before.supply, w.currency.TotalSupply()).Lt(tolerance), "tier %d rate %d", tier, rate)
			supply := w.ledger.Supply()
			require.True(absDiff(supply.Minted, supply.Burned).Lt(tolerance))
			require.Equal(before.aliceAsset, w.asset.BalanceOf(alice))
			require.True(w.asset.BalanceOf(ledgerAddr).IsZero())
			require.True(w.currency.BalanceOf(ledgerAddr).IsZero())

			_, err = w.ledger.Position(opened.Position.TokenID)
			require.ErrorIs(err, ErrPositionNotFound)
			_, err = w.registry.OwnerOf(opened.Position.TokenID)
			require.Error(err)
			require.Empty(w.ledger.PositionsOfOwner(alice))

			collateral, err := w.ledger.Collateral(assetAddr)
			require.NoError(err)
			require.True(collateral.IsZero())
			require.NoError(w.ledger.CheckConservation(assetAddr))
		}
	}
}

func TestRedeemPartial(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100})
	opened := w.open(t, alice, eth(4))
	id := opened.Position.TokenID

	want, err := w.pair(t).QuoteBuy(eth(3), eth(4))
	require.NoError(err)

	_, err = w.ledger.Redeem(w.ctx, alice, id, eth(1), uint256.NewInt(1), InputSpec{})
	require.ErrorIs(err, ErrMaxPayExceeded)
	_, err = w.ledger.Redeem(w.ctx, alice, id, eth(5), nil, InputSpec{})
	require.ErrorIs(err, ErrInsufficientCollateral)
	_, err = w.ledger.Redeem(w.ctx, alice, id, new(uint256.Int), nil, InputSpec{})
	require.ErrorIs(err, ErrZeroAmount)

	before := w.snapshot()
	res, err := w.ledger.Redeem(w.ctx, alice, id, eth(1), want.Currency, InputSpec{})
	require.NoError(err)
	require.False(res.Destroyed)
	require.Equal(eth(3), res.Position.Amount)
	require.Equal(want.Currency, res.AmountPaid)
	require.Equal(want.Currency, res.AmountIn)
	require.Equal(new(uint256.Int).Sub(before.aliceCur, want.Currency), w.currency.BalanceOf(alice))
	require.Equal(new(uint256.Int).Add(before.aliceAsset, eth(1)), w.asset.BalanceOf(alice))
	// no fee on redeem
	require.Equal(before.sinkCur, w.currency.BalanceOf(sinkAddr))
	require.NoError(w.ledger.CheckConservation(assetAddr))
}

func TestSplitMergeDuality(t *testing.T) {
	require := require.New(t)
	for _, tier := range []uint32{0, 500, 3000} {
		w := newWorld(t, worldOpts{feeTier: tier})
		a := eth(1)
		opened := w.open(t, alice, new(uint256.Int).Mul(a, uint256.NewInt(3)))
		id := opened.Position.TokenID
		before := w.snapshot()

		split, err := w.ledger.Split(w.ctx, alice, id, new(uint256.Int).Mul(a, uint256.NewInt(2)), nil, InputSpec{})
		require.NoError(err)
		require.Equal(a, split.Position.Amount)
		require.Equal(eth(2), split.NewPosition.Amount)
		require.Equal("1335335706299031", split.Paid.Dec(), "tier %d", tier)
		owner, err := w.registry.OwnerOf(split.NewPosition.TokenID)
		require.NoError(err)
		require.Equal(alice, owner)
		require.NoError(w.ledger.CheckConservation(assetAddr))

		merged, err := w.ledger.Merge(w.ctx, alice, id, split.NewPosition.TokenID, OutputSpec{})
		require.NoError(err)
		require.Equal(eth(3), merged.Position.Amount)
		require.Equal(split.NewPosition.TokenID, merged.Consumed)
		require.True(merged.Fee.IsZero())
		require.Equal(split.Paid, merged.Refund, "tier %d", tier)

		// the pair leaves caller and Currency supply where they started
		require.Equal(before.aliceCur, w.currency.BalanceOf(alice))
		require.Equal(before.supply, w.currency.TotalSupply())

		_, err = w.ledger.Position(split.NewPosition.TokenID)
		require.ErrorIs(err, ErrPositionNotFound)
		require.Len(w.ledger.PositionsOfOwner(alice), 1)
		require.NoError(w.ledger.CheckConservation(assetAddr))
	}
}

func TestMergeRefundPlusFeeMatchesSplitPayment(t *testing.T) {
	require := require.New(t)
	for _, tier := range []uint32{0, 500, 3000} {
		w := newWorld(t, worldOpts{feeTier: tier, feeRate: 100})
		opened := w.open(t, alice, eth(3))

		split, err := w.ledger.Split(w.ctx, alice, opened.Position.TokenID, eth(2), nil, InputSpec{})
		require.NoError(err)
		merged, err := w.ledger.Merge(w.ctx, alice, opened.Position.TokenID, split.NewPosition.TokenID, OutputSpec{})
		require.NoError(err)

		require.Equal(split.Paid, merged.Gross, "tier %d", tier)
		require.Equal("13353357062990", merged.Fee.Dec())
		require.Equal("1321982349236041", merged.Refund.Dec())
		require.Equal(merged.Gross, new(uint256.Int).Add(merged.Refund, merged.Fee))
	}
}

func TestSplitAndMergeRejections(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})
	first := w.open(t, alice, eth(2))
	id := first.Position.TokenID

	_, err := w.ledger.Split(w.ctx, alice, id, eth(2), nil, InputSpec{})
	require.ErrorIs(err, ErrInsufficientCollateral)
	_, err = w.ledger.Split(w.ctx, alice, id, new(uint256.Int), nil, InputSpec{})
	require.ErrorIs(err, ErrZeroAmount)

	_, err = w.ledger.Merge(w.ctx, alice, id, id, OutputSpec{})
	require.ErrorIs(err, ErrDuplicatePosition)

	other, err := w.ledger.Open(w.ctx, alice, asset2Addr, eth(1), OutputSpec{})
	require.NoError(err)
	_, err = w.ledger.Merge(w.ctx, alice, id, other.Position.TokenID, OutputSpec{})
	require.ErrorIs(err, ErrAssetMismatch)

	_, err = w.ledger.Merge(w.ctx, alice, id, 99, OutputSpec{})
	require.ErrorIs(err, ErrPositionNotFound)
}

func TestUnauthorizedCallerChangesNothing(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100, marketAsset: 1000, marketCurrency: 2000})
	first := w.open(t, alice, eth(3))
	second := w.open(t, alice, eth(1))
	id := first.Position.TokenID
	before := w.snapshot()

	calls := map[string]func() error{
		"grow": func() error {
			_, err := w.ledger.Grow(w.ctx, bob, id, eth(1), OutputSpec{})
			return err
		},
		"leveraged grow": func() error {
			_, err := w.ledger.LeveragedGrow(w.ctx, bob, id, eth(1), nil, InputSpec{})
			return err
		},
		"redeem": func() error {
			_, err := w.ledger.Redeem(w.ctx, bob, id, eth(1), nil, InputSpec{})
			return err
		},
		"cash": func() error {
			_, err := w.ledger.Cash(w.ctx, bob, id, eth(1), OutputSpec{})
			return err
		},
		"split": func() error {
			_, err := w.ledger.Split(w.ctx, bob, id, eth(1), nil, InputSpec{})
			return err
		},
		"merge": func() error {
			_, err := w.ledger.Merge(w.ctx, bob, id, second.Position.TokenID, OutputSpec{})
			return err
		},
		"transfer": func() error {
			return w.ledger.TransferPosition(w.ctx, bob, bob, id)
		},
	}
	for name, call := range calls {
		err := call()
		require.Error(err, name)
		require.Equal(errcode.Unauthorized, CodeOf(err), name)
		require.Equal(before, w.snapshot(), name)
	}
	require.Len(w.ledger.DrainEvents(), 2)
}

func TestApprovedOperatorActsForOwner(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})
	opened := w.open(t, alice, eth(2))
	id := opened.Position.TokenID
	require.NoError(w.registry.Approve(w.ctx, alice, bob, id))

	before := w.snapshot()
	res, err := w.ledger.Redeem(w.ctx, bob, id, eth(1), nil, InputSpec{})
	require.NoError(err)
	require.Equal(new(uint256.Int).Add(before.bobAsset, eth(1)), w.asset.BalanceOf(bob))
	require.Equal(new(uint256.Int).Sub(before.bobCur, res.AmountPaid), w.currency.BalanceOf(bob))
	// the position stays with its owner
	owner, err := w.registry.OwnerOf(id)
	require.NoError(err)
	require.Equal(alice, owner)
}

func TestFailedOpenRevertsAllEffects(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100})
	before := w.snapshot()

	_, err := w.ledger.Open(w.ctx, alice, assetAddr, eth(1), OutputSpec{MinOut: eth(2)})
	require.ErrorIs(err, ErrMinOutNotMet)
	require.Equal(before, w.snapshot())
	require.True(w.sink.Received(currencyAddr).IsZero())
	_, err = w.registry.OwnerOf(1)
	require.Error(err)
	require.Empty(w.ledger.DrainEvents())

	_, err = w.ledger.Open(w.ctx, alice, assetAddr, new(uint256.Int), OutputSpec{})
	require.ErrorIs(err, ErrZeroAmount)
	_, err = w.ledger.Open(w.ctx, alice, otherAddr, eth(1), OutputSpec{})
	require.ErrorIs(err, ErrAssetNotRegistered)

	// the failed attempts did not consume a token id
	res := w.open(t, alice, eth(1))
	require.Equal(uint64(1), res.Position.TokenID)
}

func TestLeveragedOpen(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100})
	target := eth(2)

	pr := w.pair(t)
	spend, err := pr.QuoteSpend(new(uint256.Int), target)
	require.NoError(err)
	sell, err := pr.QuoteSell(new(uint256.Int), spend.Asset)
	require.NoError(err)
	fee, err := FeeOf(sell.Currency, 100)
	require.NoError(err)
	pay := new(uint256.Int).Sub(target, new(uint256.Int).Sub(sell.Currency, fee))

	before := w.snapshot()
	_, err = w.ledger.LeveragedOpen(w.ctx, alice, assetAddr, target, new(uint256.Int).SubUint64(pay, 1), InputSpec{})
	require.ErrorIs(err, ErrMaxPayExceeded)
	require.Equal(before, w.snapshot())

	res, err := w.ledger.LeveragedOpen(w.ctx, alice, assetAddr, target, pay, InputSpec{})
	require.NoError(err)
	require.Equal(spend.Asset, res.OspDelta)
	require.Equal(spend.Asset, res.Position.Amount)
	require.Equal(sell.Currency, res.Gross)
	require.Equal(fee, res.Fee)
	require.Equal(pay, res.PayAmount)
	require.Equal(pay, res.AmountIn)

	require.Equal(new(uint256.Int).Sub(before.aliceCur, pay), w.currency.BalanceOf(alice))
	require.Equal(before.aliceAsset, w.asset.BalanceOf(alice))
	require.Equal(spend.Asset, w.asset.BalanceOf(ledgerAddr))
	require.Equal(fee, w.currency.BalanceOf(sinkAddr))
	supply := w.ledger.Supply()
	require.Equal(fee, supply.Minted)
	require.Equal(pay, supply.Burned)
	require.NoError(w.ledger.CheckConservation(assetAddr))

	grown, err := w.ledger.LeveragedGrow(w.ctx, alice, res.Position.TokenID, target, nil, InputSpec{})
	require.NoError(err)
	require.Equal(new(uint256.Int).Add(spend.Asset, grown.OspDelta), grown.Position.Amount)
	// the same Currency buys less further up the curve
	require.True(grown.OspDelta.Lt(spend.Asset))
	require.NoError(w.ledger.CheckConservation(assetAddr))

	_, err = w.ledger.LeveragedOpen(w.ctx, alice, assetAddr, new(uint256.Int), nil, InputSpec{})
	require.ErrorIs(err, ErrZeroAmount)
}

func TestCash(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100, marketAsset: 1000, marketCurrency: 2000})
	opened := w.open(t, alice, eth(4))
	id := opened.Position.TokenID

	cost, err := w.pair(t).QuoteBuy(eth(3), eth(4))
	require.NoError(err)
	proceeds, err := w.router.QuoteExactInput([]common.Address{assetAddr, currencyAddr}, eth(1))
	require.NoError(err)
	require.True(proceeds.Gt(cost.Currency))
	surplus := new(uint256.Int).Sub(proceeds, cost.Currency)

	before := w.snapshot()
	res, err := w.ledger.Cash(w.ctx, alice, id, eth(1), OutputSpec{})
	require.NoError(err)
	require.False(res.Destroyed)
	require.Equal(eth(3), res.Position.Amount)
	require.Equal(proceeds, res.Proceeds)
	require.Equal(cost.Currency, res.Cost)
	require.Equal(surplus, res.AmountOut)

	require.Equal(new(uint256.Int).Add(before.aliceCur, surplus), w.currency.BalanceOf(alice))
	require.Equal(before.aliceAsset, w.asset.BalanceOf(alice))
	require.Equal(new(uint256.Int).Add(before.ledgerSupply.Burned, cost.Currency), w.ledger.Supply().Burned)
	require.True(w.currency.BalanceOf(ledgerAddr).IsZero())
	require.Equal(before.sinkCur, w.currency.BalanceOf(sinkAddr))
	require.NoError(w.ledger.CheckConservation(assetAddr))

	_, err = w.ledger.Cash(w.ctx, alice, id, eth(4), OutputSpec{})
	require.ErrorIs(err, ErrInsufficientCollateral)
}

func TestCashRejectsPoorMarket(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100, marketAsset: 1000, marketCurrency: 500})
	opened := w.open(t, alice, eth(4))
	before := w.snapshot()

	_, err := w.ledger.Cash(w.ctx, alice, opened.Position.TokenID, eth(1), OutputSpec{})
	require.ErrorIs(err, ErrInsufficientRate)
	require.Equal(before, w.snapshot())

	bare := newWorld(t, worldOpts{})
	pos := bare.open(t, alice, eth(1))
	_, err = bare.ledger.Cash(bare.ctx, alice, pos.Position.TokenID, eth(1), OutputSpec{})
	require.ErrorIs(err, ErrMarketUnavailable)
}

func TestExchangeRoutes(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100})
	amount := eth(2)
	toOther := []common.Address{currencyAddr, otherAddr}
	fromOther := []common.Address{otherAddr, currencyAddr}

	quote, err := w.pair(t).QuoteSell(new(uint256.Int), amount)
	require.NoError(err)
	fee, err := FeeOf(quote.Currency, 100)
	require.NoError(err)
	net := new(uint256.Int).Sub(quote.Currency, fee)
	wantOut, err := w.router.QuoteExactInput(toOther, net)
	require.NoError(err)

	before := w.snapshot()
	_, err = w.ledger.Open(w.ctx, alice, assetAddr, amount, OutputSpec{Route: ExchangeRoute(toOther...), MinOut: new(uint256.Int).AddUint64(wantOut, 1)})
	require.Equal(errcode.MinOutNotMet, CodeOf(err))
	require.Equal(before, w.snapshot())

	opened, err := w.ledger.Open(w.ctx, alice, assetAddr, amount, OutputSpec{Route: ExchangeRoute(toOther...), MinOut: wantOut})
	require.NoError(err)
	require.Equal(wantOut, opened.AmountOut)
	require.Equal(new(uint256.Int).Add(before.aliceOther, wantOut), w.other.BalanceOf(alice))
	require.Equal(before.aliceCur, w.currency.BalanceOf(alice))
	require.True(w.currency.BalanceOf(ledgerAddr).IsZero())

	cost, err := w.pair(t).QuoteBuy(eth(1), amount)
	require.NoError(err)
	wantIn, err := w.router.QuoteExactOutput(fromOther, cost.Currency)
	require.NoError(err)

	id := opened.Position.TokenID
	_, err = w.ledger.Redeem(w.ctx, alice, id, eth(1), new(uint256.Int).SubUint64(wantIn, 1), InputSpec{Route: ExchangeRoute(fromOther...)})
	require.ErrorIs(err, ErrMaxPayExceeded)

	mid := w.snapshot()
	redeemed, err := w.ledger.Redeem(w.ctx, alice, id, eth(1), wantIn, InputSpec{Route: ExchangeRoute(fromOther...)})
	require.NoError(err)
	require.Equal(cost.Currency, redeemed.AmountPaid)
	require.Equal(wantIn, redeemed.AmountIn)
	require.Equal(new(uint256.Int).Sub(mid.aliceOther, wantIn), w.other.BalanceOf(alice))
	require.Equal(mid.aliceCur, w.currency.BalanceOf(alice))
	require.True(w.currency.BalanceOf(ledgerAddr).IsZero())
	require.NoError(w.ledger.CheckConservation(assetAddr))
}

func TestInvalidRoutes(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})
	opened := w.open(t, alice, eth(2))
	id := opened.Position.TokenID

	_, err := w.ledger.Open(w.ctx, alice, assetAddr, eth(1), OutputSpec{Route: ExchangeRoute(otherAddr, currencyAddr)})
	require.ErrorIs(err, ErrInvalidRoute)
	_, err = w.ledger.Open(w.ctx, alice, assetAddr, eth(1), OutputSpec{Route: ExchangeRoute(currencyAddr)})
	require.ErrorIs(err, ErrInvalidRoute)
	_, err = w.ledger.Redeem(w.ctx, alice, id, eth(1), nil, InputSpec{Route: ExchangeRoute(currencyAddr, otherAddr)})
	require.ErrorIs(err, ErrInvalidRoute)
	_, err = w.ledger.Split(w.ctx, alice, id, eth(1), nil, InputSpec{Route: Route{Kind: RouteKind(7)}})
	require.ErrorIs(err, ErrInvalidRoute)
	require.Equal("route(7)", RouteKind(7).String())
}

// reentrantExchange calls back into the ledger before routing.
type reentrantExchange struct {
	*exchange.Router
	ledger *Ledger
	nested error
}

func (r *reentrantExchange) ExactInput(ctx context.Context, params exchange.ExactInputParams) (*uint256.Int, error) {
	_, r.nested = r.ledger.Open(ctx, alice, assetAddr, eth(1), OutputSpec{})
	if r.nested != nil {
		return nil, r.nested
	}
	return r.Router.ExactInput(ctx, params)
}

func TestReentrantCallIsRejected(t *testing.T) {
	require := require.New(t)
	var wrapper *reentrantExchange
	w := newWorld(t, worldOpts{
		wrapExchange: func(r *exchange.Router) Exchange {
			wrapper = &reentrantExchange{Router: r}
			return wrapper
		},
	})
	wrapper.ledger = w.ledger
	before := w.snapshot()

	_, err := w.ledger.Open(w.ctx, alice, assetAddr, eth(2), OutputSpec{Route: ExchangeRoute(currencyAddr, otherAddr)})
	require.ErrorIs(err, ErrReentrant)
	require.ErrorIs(wrapper.nested, ErrReentrant)
	require.Equal(before, w.snapshot())
	_, err = w.registry.OwnerOf(1)
	require.Error(err)

	// a fresh context is not a reentry
	res := w.open(t, alice, eth(1))
	require.Equal(uint64(1), res.Position.TokenID)
}

func TestOwnerIndexFollowsTransfers(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})
	first := w.open(t, alice, eth(1))
	second := w.open(t, alice, eth(2))
	third, err := w.ledger.Open(w.ctx, alice, asset2Addr, eth(1), OutputSpec{})
	require.NoError(err)

	ids := func(ps []Position) []uint64 {
		out := make([]uint64, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.TokenID)
		}
		return out
	}
	require.Equal([]uint64{1, 2, 3}, ids(w.ledger.PositionsOfOwner(alice)))
	require.Equal([]uint64{3}, ids(w.ledger.PositionsOfOwnerByAsset(alice, asset2Addr)))

	// a transfer made directly on the registry is seen by the ledger
	require.NoError(w.registry.TransferFrom(w.ctx, alice, alice, bob, first.Position.TokenID))
	require.Equal([]uint64{2, 3}, ids(w.ledger.PositionsOfOwner(alice)))
	require.Equal([]uint64{1}, ids(w.ledger.PositionsOfOwner(bob)))

	require.NoError(w.ledger.TransferPosition(w.ctx, bob, carol, first.Position.TokenID))
	require.Empty(w.ledger.PositionsOfOwner(bob))
	require.Equal([]uint64{1}, ids(w.ledger.PositionsOfOwnerByAsset(carol, assetAddr)))

	// carol now controls the position, alice does not
	_, err = w.ledger.Grow(w.ctx, alice, first.Position.TokenID, eth(1), OutputSpec{})
	require.ErrorIs(err, ErrUnauthorized)
	_, err = w.ledger.Grow(w.ctx, carol, first.Position.TokenID, eth(1), OutputSpec{})
	require.NoError(err)

	owners := w.ledger.Owners()
	require.Len(owners, 3)
	require.Equal(model.PositionRecord{TokenID: 1, Owner: carol.Hex(), Asset: assetAddr.Hex(), Amount: eth(2).Dec()}, owners[0])
	require.Equal(second.Position.TokenID, owners[1].TokenID)
	require.Equal(third.Position.TokenID, owners[2].TokenID)
}

func TestAdminOperations(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})

	require.ErrorIs(w.ledger.SetFeeRate(w.ctx, alice, 10), ErrNotAdmin)
	require.ErrorIs(w.ledger.SetFeeRate(w.ctx, admin, MaxFeeRate+1), ErrFeeRateTooHigh)
	require.Equal(uint32(0), w.ledger.FeeRate())
	require.NoError(w.ledger.SetFeeRate(w.ctx, admin, MaxFeeRate))
	require.Equal(uint32(MaxFeeRate), w.ledger.FeeRate())

	require.ErrorIs(w.ledger.RegisterAsset(w.ctx, admin, w.asset, 0), ErrAssetRegistered)
	require.ErrorIs(w.ledger.RegisterAsset(w.ctx, alice, w.other, 0), ErrNotAdmin)
	require.ErrorIs(w.ledger.RegisterAsset(w.ctx, admin, w.currency, 0), ErrAssetMismatch)
	require.ErrorIs(w.ledger.RegisterAsset(w.ctx, admin, w.other, 5), pool.ErrConfigNotFound)
	require.Equal([]common.Address{assetAddr, asset2Addr}, w.ledger.Assets())

	newSink := token.NewSink(carol, w.journal)
	require.ErrorIs(w.ledger.SetFeeSink(w.ctx, bob, newSink), ErrNotAdmin)
	require.NoError(w.ledger.SetFeeSink(w.ctx, admin, newSink))
	res := w.open(t, alice, eth(1))
	require.False(res.Fee.IsZero())
	require.Equal(res.Fee, newSink.Received(currencyAddr))
	require.True(w.sink.Received(currencyAddr).IsZero())

	_, err := New(Config{Currency: w.currency, Registry: w.registry, FeeSink: w.sink})
	require.Error(err)
}

func TestCurveStatesTrackFlows(t *testing.T) {
	require := require.New(t)
	w := newWorld(t, worldOpts{})
	w.open(t, alice, eth(3))

	states := w.ledger.CurveStates()
	require.Len(states, 4)
	require.Equal(assetAddr.Hex(), states[0].Asset)
	require.Equal("currency_to_asset", states[0].Direction)
	require.Equal("asset_to_currency", states[1].Direction)
	require.Equal(uint64(1), states[1].Swaps)
	require.Equal(eth(3).Dec(), states[1].Balance0)
	// quotes run on copies, so the live curve keeps its genesis price
	require.Equal(w.cfg.InitialSqrtPriceX96.Dec(), states[1].SqrtPriceX96)
}

func TestMetricsAndEvents(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(err)
	w := newWorld(t, worldOpts{feeTier: 3000, feeRate: 100, metrics: metrics})

	res := w.open(t, alice, eth(2))
	_, err = w.ledger.Open(w.ctx, alice, assetAddr, new(uint256.Int), OutputSpec{})
	require.Error(err)

	require.Equal(1.0, counterValue(t, reg, "curveledger_operations_total", map[string]string{"op": model.OpOpen, "code": "OK"}))
	require.Equal(1.0, counterValue(t, reg, "curveledger_operations_total", map[string]string{"op": model.OpOpen, "code": string(errcode.ZeroAmount)}))
	require.Equal(2.0, counterValue(t, reg, "curveledger_operations_total", map[string]string{"op": model.OpRegisterAsset, "code": "OK"}))
	require.Equal(toFloat(res.Gross), counterValue(t, reg, "curveledger_currency_minted_total", nil))
	require.Equal(toFloat(res.Fee), counterValue(t, reg, "curveledger_fees_total", nil))

	events := w.ledger.DrainEvents()
	require.Len(events, 1)
	event := events[0]
	require.Equal(model.OpOpen, event.Op)
	require.Equal("OK", event.Code)
	require.Equal(uint64(3), event.Seq)
	require.Equal(int64(1_700_000_000), event.Timestamp)
	require.Equal(res.Gross.Dec(), event.Gross)
	require.Equal(res.Fee.Dec(), event.Fee)
	require.Equal(eth(2).Dec(), event.CollateralDelta)
	require.False(event.Failed())
	require.Empty(w.ledger.DrainEvents())

	_, err = NewMetrics(reg)
	require.Error(err)
}

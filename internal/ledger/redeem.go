package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/exchange"
	"curveLedger/internal/model"
)

// Redeem releases amount of the position's Asset to caller against its
// exact-output cost on the curve, which is burned. No fee is charged.
func (l *Ledger) Redeem(ctx context.Context, caller common.Address, tokenID uint64, amount, maxPay *uint256.Int, in InputSpec) (RedeemResult, error) {
	var res RedeemResult
	err := l.run(ctx, model.OpRedeem, func(ctx context.Context) error {
		pos, err := l.authorize(caller, tokenID)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if amount.Gt(pos.Amount) {
			return fmt.Errorf("%w: redeem %s of %s", ErrInsufficientCollateral, amount.Dec(), pos.Amount.Dec())
		}
		if err := l.checkInput(in); err != nil {
			return err
		}
		entry, err := l.asset(pos.Asset)
		if err != nil {
			return err
		}

		rest := new(uint256.Int).Sub(pos.Amount, amount)
		quote, err := entry.pair.QuoteBuy(rest, pos.Amount)
		if err != nil {
			return err
		}
		cost := quote.Currency
		if err := l.checkMaxPay(cost, maxPay, in); err != nil {
			return err
		}

		destroyed, err := l.release(ctx, entry, pos, rest)
		if err != nil {
			return err
		}
		l.journal.Append(entry.pair.RecordBuy(quote))
		if err := entry.token.Transfer(ctx, l.address, caller, amount); err != nil {
			return err
		}
		spent, err := l.pullAndBurn(ctx, caller, cost, maxPay, in)
		if err != nil {
			return err
		}

		l.logger.Debug("collateral redeemed",
			zap.Uint64("token_id", tokenID),
			zap.String("asset", pos.Asset.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("cost", cost.Dec()),
		)
		res = RedeemResult{Position: pos.clone(), AmountPaid: cost, AmountIn: spent, Destroyed: destroyed}
		l.emit(model.LedgerEvent{
			Op:              model.OpRedeem,
			Caller:          caller.Hex(),
			TokenID:         tokenID,
			Asset:           pos.Asset.Hex(),
			CollateralDelta: signed(amount, true),
			PositionAmount:  rest.Dec(),
			Burned:          cost.Dec(),
			AmountIn:        spent.Dec(),
		})
		return nil
	})
	return res, err
}

// Cash sells amount of the position's Asset on the market instead of the
// curve. The proceeds must cover the curve cost of the segment, which is
// burned; the surplus goes to caller through out. No fee is charged.
func (l *Ledger) Cash(ctx context.Context, caller common.Address, tokenID uint64, amount *uint256.Int, out OutputSpec) (CashResult, error) {
	var res CashResult
	err := l.run(ctx, model.OpCash, func(ctx context.Context) error {
		pos, err := l.authorize(caller, tokenID)
		if err != nil {
			return err
		}
		if l.market == nil {
			return ErrMarketUnavailable
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if amount.Gt(pos.Amount) {
			return fmt.Errorf("%w: cash %s of %s", ErrInsufficientCollateral, amount.Dec(), pos.Amount.Dec())
		}
		if err := l.checkOutput(out); err != nil {
			return err
		}
		entry, err := l.asset(pos.Asset)
		if err != nil {
			return err
		}

		rest := new(uint256.Int).Sub(pos.Amount, amount)
		quote, err := entry.pair.QuoteBuy(rest, pos.Amount)
		if err != nil {
			return err
		}
		cost := quote.Currency
		path := []common.Address{pos.Asset, l.currency.Address()}
		quoted, err := l.market.QuoteExactInput(path, amount)
		if err != nil {
			return fmt.Errorf("market quote: %w", err)
		}
		if quoted.Lt(cost) {
			return fmt.Errorf("%w: market pays %s, cost %s", ErrInsufficientRate, quoted.Dec(), cost.Dec())
		}

		destroyed, err := l.release(ctx, entry, pos, rest)
		if err != nil {
			return err
		}
		if err := entry.token.Approve(ctx, l.address, l.market.Address(), amount); err != nil {
			return err
		}
		proceeds, err := l.market.ExactInput(ctx, exchange.ExactInputParams{
			Payer:            l.address,
			Recipient:        l.address,
			Path:             path,
			AmountIn:         amount,
			AmountOutMinimum: cost,
		})
		if err != nil {
			return fmt.Errorf("market sale: %w", err)
		}
		if err := l.burnCurrency(ctx, cost); err != nil {
			return err
		}
		surplus := new(uint256.Int).Sub(proceeds, cost)
		amountOut, err := l.swapOut(ctx, caller, surplus, out)
		if err != nil {
			return err
		}

		l.logger.Debug("collateral cashed",
			zap.Uint64("token_id", tokenID),
			zap.String("asset", pos.Asset.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("proceeds", proceeds.Dec()),
			zap.String("cost", cost.Dec()),
		)
		res = CashResult{Position: pos.clone(), Proceeds: proceeds, Cost: cost, AmountOut: amountOut, Destroyed: destroyed}
		l.emit(model.LedgerEvent{
			Op:              model.OpCash,
			Caller:          caller.Hex(),
			TokenID:         tokenID,
			Asset:           pos.Asset.Hex(),
			CollateralDelta: signed(amount, true),
			PositionAmount:  rest.Dec(),
			Gross:           proceeds.Dec(),
			Burned:          cost.Dec(),
			AmountOut:       amountOut.Dec(),
		})
		return nil
	})
	return res, err
}

// release lowers the position to rest, destroying it at zero, and lowers the
// asset's collateral accordingly.
func (l *Ledger) release(ctx context.Context, entry *assetEntry, pos *Position, rest *uint256.Int) (bool, error) {
	removed := new(uint256.Int).Sub(pos.Amount, rest)
	l.setCollateral(entry, new(uint256.Int).Sub(entry.collateral, removed))
	l.setAmount(pos, rest)
	if !rest.IsZero() {
		return false, nil
	}
	l.deletePosition(pos.TokenID)
	if err := l.registry.Burn(ctx, l.address, pos.TokenID); err != nil {
		return false, err
	}
	return true, nil
}

package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/model"
	"curveLedger/internal/pool"
)

// LeveragedOpen opens a position worth target Currency on the curve. The
// Asset that target buys is issued straight into the ledger and locked, so
// the caller only pays the difference between target and what that Asset
// realizes net of the fee. maxPay is in the input route's token; nil means
// no limit.
func (l *Ledger) LeveragedOpen(ctx context.Context, caller, asset common.Address, target, maxPay *uint256.Int, in InputSpec) (LeveragedResult, error) {
	var res LeveragedResult
	err := l.run(ctx, model.OpLeveragedOpen, func(ctx context.Context) error {
		entry, err := l.asset(asset)
		if err != nil {
			return err
		}
		if err := l.checkInput(in); err != nil {
			return err
		}
		pos := &Position{TokenID: l.allocateID(), Asset: asset, Amount: new(uint256.Int)}
		l.putPosition(pos)
		if err := l.registry.Mint(ctx, l.address, caller, pos.TokenID); err != nil {
			return err
		}
		res, err = l.leverage(ctx, caller, entry, pos, target, maxPay, in)
		if err != nil {
			return err
		}
		l.emit(leverageEvent(model.OpLeveragedOpen, caller, pos, res))
		return nil
	})
	return res, err
}

// LeveragedGrow applies LeveragedOpen to an existing position.
func (l *Ledger) LeveragedGrow(ctx context.Context, caller common.Address, tokenID uint64, target, maxPay *uint256.Int, in InputSpec) (LeveragedResult, error) {
	var res LeveragedResult
	err := l.run(ctx, model.OpLeveragedGrow, func(ctx context.Context) error {
		pos, err := l.authorize(caller, tokenID)
		if err != nil {
			return err
		}
		if err := l.checkInput(in); err != nil {
			return err
		}
		entry, err := l.asset(pos.Asset)
		if err != nil {
			return err
		}
		res, err = l.leverage(ctx, caller, entry, pos, target, maxPay, in)
		if err != nil {
			return err
		}
		l.emit(leverageEvent(model.OpLeveragedGrow, caller, pos, res))
		return nil
	})
	return res, err
}

func (l *Ledger) leverage(ctx context.Context, caller common.Address, entry *assetEntry, pos *Position, target, maxPay *uint256.Int, in InputSpec) (LeveragedResult, error) {
	if target == nil || target.IsZero() {
		return LeveragedResult{}, ErrZeroAmount
	}
	from := pos.Amount

	// leg 1: what target buys on the curve from the position's cursor
	spend, err := entry.pair.QuoteSpend(from, target)
	if err != nil {
		return LeveragedResult{}, err
	}
	delta := spend.Asset
	if delta.IsZero() {
		return LeveragedResult{}, fmt.Errorf("%w: target buys no asset", ErrZeroAmount)
	}

	// leg 2: lock that Asset back through the open flow
	to := new(uint256.Int).Add(from, delta)
	sell, err := entry.pair.QuoteSell(from, to)
	if err != nil {
		return LeveragedResult{}, err
	}
	gross := sell.Currency
	fee, net, err := l.splitFee(gross)
	if err != nil {
		return LeveragedResult{}, err
	}
	// the curve never returns more for delta than target bought it for
	pay, underflow := new(uint256.Int).SubOverflow(target, net)
	if underflow {
		return LeveragedResult{}, fmt.Errorf("%w: net %s above target %s", pool.ErrSettlementUnderflow, net.Dec(), target.Dec())
	}
	if err := l.checkMaxPay(pay, maxPay, in); err != nil {
		return LeveragedResult{}, err
	}

	l.setAmount(pos, to)
	l.setCollateral(entry, new(uint256.Int).Add(entry.collateral, delta))
	l.journal.Append(entry.pair.RecordBuy(spend))
	l.journal.Append(entry.pair.RecordSell(sell))

	if err := entry.token.Mint(ctx, l.address, l.address, delta); err != nil {
		return LeveragedResult{}, err
	}
	if err := l.chargeFee(ctx, fee); err != nil {
		return LeveragedResult{}, err
	}
	spent, err := l.pullAndBurn(ctx, caller, pay, maxPay, in)
	if err != nil {
		return LeveragedResult{}, err
	}

	l.logger.Debug("leveraged collateral locked",
		zap.Uint64("token_id", pos.TokenID),
		zap.String("asset", pos.Asset.Hex()),
		zap.String("amount", delta.Dec()),
		zap.String("fee", fee.Dec()),
		zap.String("pay", pay.Dec()),
	)
	return LeveragedResult{
		Position:  pos.clone(),
		OspDelta:  delta,
		Gross:     gross,
		Fee:       fee,
		PayAmount: pay,
		AmountIn:  spent,
	}, nil
}

func leverageEvent(op string, caller common.Address, pos *Position, res LeveragedResult) model.LedgerEvent {
	return model.LedgerEvent{
		Op:              op,
		Caller:          caller.Hex(),
		TokenID:         pos.TokenID,
		Asset:           pos.Asset.Hex(),
		CollateralDelta: res.OspDelta.Dec(),
		PositionAmount:  pos.Amount.Dec(),
		Gross:           res.Gross.Dec(),
		Fee:             res.Fee.Dec(),
		Minted:          res.Fee.Dec(),
		Burned:          res.PayAmount.Dec(),
		AmountIn:        res.AmountIn.Dec(),
	}
}

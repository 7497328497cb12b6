package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/model"
)

// Open locks amount of asset from caller in a new position and pays out the
// Currency it realizes on the curve, less the fee.
func (l *Ledger) Open(ctx context.Context, caller, asset common.Address, amount *uint256.Int, out OutputSpec) (OpenResult, error) {
	var res OpenResult
	err := l.run(ctx, model.OpOpen, func(ctx context.Context) error {
		entry, err := l.asset(asset)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if err := l.checkOutput(out); err != nil {
			return err
		}

		pos := &Position{TokenID: l.allocateID(), Asset: asset, Amount: new(uint256.Int)}
		l.putPosition(pos)
		if err := l.registry.Mint(ctx, l.address, caller, pos.TokenID); err != nil {
			return err
		}
		res, err = l.lock(ctx, caller, entry, pos, amount, out)
		if err != nil {
			return err
		}
		l.emit(lockEvent(model.OpOpen, caller, pos, amount, res))
		return nil
	})
	return res, err
}

// Grow adds amount to an existing position, priced from the position's
// current amount.
func (l *Ledger) Grow(ctx context.Context, caller common.Address, tokenID uint64, amount *uint256.Int, out OutputSpec) (OpenResult, error) {
	var res OpenResult
	err := l.run(ctx, model.OpGrow, func(ctx context.Context) error {
		pos, err := l.authorize(caller, tokenID)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if err := l.checkOutput(out); err != nil {
			return err
		}
		entry, err := l.asset(pos.Asset)
		if err != nil {
			return err
		}
		res, err = l.lock(ctx, caller, entry, pos, amount, out)
		if err != nil {
			return err
		}
		l.emit(lockEvent(model.OpGrow, caller, pos, amount, res))
		return nil
	})
	return res, err
}

// lock moves add of the position's Asset from caller into the ledger, prices
// the segment [amount, amount+add) on the curve, takes the fee and pays the
// rest to caller through out.
func (l *Ledger) lock(ctx context.Context, caller common.Address, entry *assetEntry, pos *Position, add *uint256.Int, out OutputSpec) (OpenResult, error) {
	from := pos.Amount
	to := new(uint256.Int).Add(from, add)
	quote, err := entry.pair.QuoteSell(from, to)
	if err != nil {
		return OpenResult{}, err
	}
	gross := quote.Currency
	fee, net, err := l.splitFee(gross)
	if err != nil {
		return OpenResult{}, err
	}

	l.setAmount(pos, to)
	l.setCollateral(entry, new(uint256.Int).Add(entry.collateral, add))
	l.journal.Append(entry.pair.RecordSell(quote))

	if err := entry.token.TransferFrom(ctx, l.address, caller, l.address, add); err != nil {
		return OpenResult{}, err
	}
	if err := l.chargeFee(ctx, fee); err != nil {
		return OpenResult{}, err
	}
	amountOut, err := l.payOut(ctx, caller, net, out)
	if err != nil {
		return OpenResult{}, err
	}

	l.logger.Debug("collateral locked",
		zap.Uint64("token_id", pos.TokenID),
		zap.String("asset", pos.Asset.Hex()),
		zap.String("amount", add.Dec()),
		zap.String("gross", gross.Dec()),
		zap.String("fee", fee.Dec()),
	)
	return OpenResult{Position: pos.clone(), Gross: gross, Fee: fee, AmountOut: amountOut}, nil
}

func lockEvent(op string, caller common.Address, pos *Position, add *uint256.Int, res OpenResult) model.LedgerEvent {
	return model.LedgerEvent{
		Op:              op,
		Caller:          caller.Hex(),
		TokenID:         pos.TokenID,
		Asset:           pos.Asset.Hex(),
		CollateralDelta: add.Dec(),
		PositionAmount:  pos.Amount.Dec(),
		Gross:           res.Gross.Dec(),
		Fee:             res.Fee.Dec(),
		Minted:          res.Gross.Dec(),
		AmountOut:       res.AmountOut.Dec(),
	}
}

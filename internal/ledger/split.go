package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/model"
)

// Split carves amount out of a position into a new position owned by caller.
// The original keeps the low end of the curve and the new position starts at
// zero. Redeeming both then costs less than redeeming the original, and caller
// pays that difference: the exact-output cost of the top segment less that of
// the bottom one.
func (l *Ledger) Split(ctx context.Context, caller common.Address, tokenID uint64, amount, maxPay *uint256.Int, in InputSpec) (SplitResult, error) {
	var res SplitResult
	err := l.run(ctx, model.OpSplit, func(ctx context.Context) error {
		pos, err := l.authorize(caller, tokenID)
		if err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if !amount.Lt(pos.Amount) {
			return fmt.Errorf("%w: split %s of %s", ErrInsufficientCollateral, amount.Dec(), pos.Amount.Dec())
		}
		if err := l.checkInput(in); err != nil {
			return err
		}
		entry, err := l.asset(pos.Asset)
		if err != nil {
			return err
		}

		keep := new(uint256.Int).Sub(pos.Amount, amount)
		shift, err := entry.pair.QuoteShift(pos.Amount, amount)
		if err != nil {
			return err
		}
		need := shift.Settlement
		if err := l.checkMaxPay(need, maxPay, in); err != nil {
			return err
		}

		l.setAmount(pos, keep)
		carved := &Position{TokenID: l.allocateID(), Asset: pos.Asset, Amount: amount.Clone()}
		l.putPosition(carved)
		l.journal.Append(entry.pair.RecordSplit(shift))
		if err := l.registry.Mint(ctx, l.address, caller, carved.TokenID); err != nil {
			return err
		}
		spent, err := l.pullAndBurn(ctx, caller, need, maxPay, in)
		if err != nil {
			return err
		}

		l.logger.Debug("position split",
			zap.Uint64("token_id", tokenID),
			zap.Uint64("new_token_id", carved.TokenID),
			zap.String("amount", amount.Dec()),
			zap.String("paid", need.Dec()),
		)
		res = SplitResult{Position: pos.clone(), NewPosition: carved.clone(), Paid: need, AmountIn: spent}
		l.emit(model.LedgerEvent{
			Op:             model.OpSplit,
			Caller:         caller.Hex(),
			TokenID:        tokenID,
			RelatedTokenID: carved.TokenID,
			Asset:          pos.Asset.Hex(),
			PositionAmount: keep.Dec(),
			Burned:         need.Dec(),
			AmountIn:       spent.Dec(),
		})
		return nil
	})
	return res, err
}

// Merge folds position b into position a. Caller must be owner or approved
// on both. The gross refund is exactly the settlement Split would charge to
// separate them again; caller receives it less the fee.
func (l *Ledger) Merge(ctx context.Context, caller common.Address, a, b uint64, out OutputSpec) (MergeResult, error) {
	var res MergeResult
	err := l.run(ctx, model.OpMerge, func(ctx context.Context) error {
		if a == b {
			return ErrDuplicatePosition
		}
		keep, err := l.authorize(caller, a)
		if err != nil {
			return err
		}
		gone, err := l.authorize(caller, b)
		if err != nil {
			return err
		}
		if keep.Asset != gone.Asset {
			return fmt.Errorf("%w: %s and %s", ErrAssetMismatch, keep.Asset.Hex(), gone.Asset.Hex())
		}
		if err := l.checkOutput(out); err != nil {
			return err
		}
		entry, err := l.asset(keep.Asset)
		if err != nil {
			return err
		}

		total := new(uint256.Int).Add(keep.Amount, gone.Amount)
		shift, err := entry.pair.QuoteShift(total, gone.Amount)
		if err != nil {
			return err
		}
		gross := shift.Settlement
		fee, refund, err := l.splitFee(gross)
		if err != nil {
			return err
		}

		l.setAmount(keep, total)
		l.setAmount(gone, new(uint256.Int))
		l.deletePosition(b)
		l.journal.Append(entry.pair.RecordMerge(shift))
		if err := l.registry.Burn(ctx, l.address, b); err != nil {
			return err
		}
		if err := l.chargeFee(ctx, fee); err != nil {
			return err
		}
		amountOut, err := l.payOut(ctx, caller, refund, out)
		if err != nil {
			return err
		}

		l.logger.Debug("positions merged",
			zap.Uint64("token_id", a),
			zap.Uint64("merged_token_id", b),
			zap.String("refund", refund.Dec()),
			zap.String("fee", fee.Dec()),
		)
		res = MergeResult{Position: keep.clone(), Consumed: b, Gross: gross, Fee: fee, Refund: refund, AmountOut: amountOut}
		l.emit(model.LedgerEvent{
			Op:             model.OpMerge,
			Caller:         caller.Hex(),
			TokenID:        a,
			RelatedTokenID: b,
			Asset:          keep.Asset.Hex(),
			PositionAmount: total.Dec(),
			Gross:          gross.Dec(),
			Fee:            fee.Dec(),
			Minted:         gross.Dec(),
			AmountOut:      amountOut.Dec(),
		})
		return nil
	})
	return res, err
}

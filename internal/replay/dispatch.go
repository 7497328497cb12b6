package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/errcode"
	"curveLedger/internal/ledger"
	"curveLedger/internal/model"
	"curveLedger/internal/token"
)

// Apply executes one operation record against the world. The clock moves to
// the record's timestamp first. Failed operations leave no state behind.
func (w *World) Apply(ctx context.Context, op model.OperationRecord) error {
	w.advance(op.Timestamp)

	kind := strings.ToLower(strings.TrimSpace(op.Kind))
	switch kind {
	case model.OpFund:
		return w.fund(ctx, op)
	case model.OpApprove:
		return w.approve(ctx, op)
	}

	caller, err := parseAddress("caller", op.Caller)
	if err != nil {
		return err
	}
	l := w.Ledger

	switch kind {
	case model.OpOpen:
		asset, err := parseAddress("asset", op.Asset)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", op.Amount)
		if err != nil {
			return err
		}
		out, err := outputSpec(op)
		if err != nil {
			return err
		}
		_, err = l.Open(ctx, caller, asset, amount, out)
		return err

	case model.OpGrow:
		amount, err := parseAmount("amount", op.Amount)
		if err != nil {
			return err
		}
		out, err := outputSpec(op)
		if err != nil {
			return err
		}
		_, err = l.Grow(ctx, caller, op.TokenID, amount, out)
		return err

	case model.OpLeveragedOpen:
		asset, err := parseAddress("asset", op.Asset)
		if err != nil {
			return err
		}
		target, maxPay, in, err := payArgs(op)
		if err != nil {
			return err
		}
		_, err = l.LeveragedOpen(ctx, caller, asset, target, maxPay, in)
		return err

	case model.OpLeveragedGrow:
		target, maxPay, in, err := payArgs(op)
		if err != nil {
			return err
		}
		_, err = l.LeveragedGrow(ctx, caller, op.TokenID, target, maxPay, in)
		return err

	case model.OpRedeem:
		amount, maxPay, in, err := payArgs(op)
		if err != nil {
			return err
		}
		_, err = l.Redeem(ctx, caller, op.TokenID, amount, maxPay, in)
		return err

	case model.OpCash:
		amount, err := parseAmount("amount", op.Amount)
		if err != nil {
			return err
		}
		out, err := outputSpec(op)
		if err != nil {
			return err
		}
		_, err = l.Cash(ctx, caller, op.TokenID, amount, out)
		return err

	case model.OpSplit:
		amount, maxPay, in, err := payArgs(op)
		if err != nil {
			return err
		}
		_, err = l.Split(ctx, caller, op.TokenID, amount, maxPay, in)
		return err

	case model.OpMerge:
		out, err := outputSpec(op)
		if err != nil {
			return err
		}
		_, err = l.Merge(ctx, caller, op.TokenID, op.OtherID, out)
		return err

	case model.OpTransfer:
		to, err := parseAddress("to", op.To)
		if err != nil {
			return err
		}
		return l.TransferPosition(ctx, caller, to, op.TokenID)

	case model.OpSetFeeRate:
		return l.SetFeeRate(ctx, caller, op.FeeRate)

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
}

// payArgs reads the amount, the optional max_pay and the input route of the
// operations that pull Currency from the caller.
func payArgs(op model.OperationRecord) (*uint256.Int, *uint256.Int, ledger.InputSpec, error) {
	amount, err := parseAmount("amount", op.Amount)
	if err != nil {
		return nil, nil, ledger.InputSpec{}, err
	}
	maxPay, err := parseOptional("max_pay", op.MaxPay)
	if err != nil {
		return nil, nil, ledger.InputSpec{}, err
	}
	in, err := inputSpec(op)
	if err != nil {
		return nil, nil, ledger.InputSpec{}, err
	}
	return amount, maxPay, in, nil
}

// fund mints amount of token (Currency by default) to op.To, or to the
// caller when To is empty.
func (w *World) fund(ctx context.Context, op model.OperationRecord) error {
	tok := w.Currency()
	if op.Token != "" {
		addr, err := parseAddress("token", op.Token)
		if err != nil {
			return err
		}
		if tok, err = w.Token(addr); err != nil {
			return err
		}
	}
	recipient := op.To
	if recipient == "" {
		recipient = op.Caller
	}
	to, err := parseAddress("to", recipient)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", op.Amount)
	if err != nil {
		return err
	}
	return w.atomic(func() error {
		return tok.Mint(ctx, w.funder, to, amount)
	})
}

// approve sets a token allowance when Token is set, a single-position
// approval when TokenID is set, and an operator approval otherwise. An empty
// amount approves the maximum allowance.
func (w *World) approve(ctx context.Context, op model.OperationRecord) error {
	caller, err := parseAddress("caller", op.Caller)
	if err != nil {
		return err
	}
	spender, err := parseAddress("to", op.To)
	if err != nil {
		return err
	}

	switch {
	case op.Token != "":
		addr, err := parseAddress("token", op.Token)
		if err != nil {
			return err
		}
		tok, err := w.Token(addr)
		if err != nil {
			return err
		}
		amount := token.MaxAllowance
		if op.Amount != "" {
			if amount, err = parseAmount("amount", op.Amount); err != nil {
				return err
			}
		}
		return w.atomic(func() error { return tok.Approve(ctx, caller, spender, amount) })
	case op.TokenID != 0:
		return w.atomic(func() error { return w.Registry.Approve(ctx, caller, spender, op.TokenID) })
	default:
		return w.atomic(func() error { return w.Registry.SetApprovalForAll(ctx, caller, spender, true) })
	}
}

// failureEvent records a rejected operation under its error code.
func (w *World) failureEvent(op model.OperationRecord, err error) model.LedgerEvent {
	event := model.LedgerEvent{
		OpSeq:          op.Seq,
		Op:             strings.ToLower(strings.TrimSpace(op.Kind)),
		Code:           string(errcode.Of(err)),
		Caller:         op.Caller,
		TokenID:        op.TokenID,
		RelatedTokenID: op.OtherID,
		Timestamp:      w.now,
	}
	if common.IsHexAddress(op.Caller) {
		event.Caller = common.HexToAddress(op.Caller).Hex()
	}
	switch {
	case common.IsHexAddress(op.Asset):
		event.Asset = common.HexToAddress(op.Asset).Hex()
	case op.TokenID != 0:
		if pos, err := w.Ledger.Position(op.TokenID); err == nil {
			event.Asset = pos.Asset.Hex()
		}
	}
	return event
}

package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/clmath"
	"curveLedger/internal/model"
	"curveLedger/internal/pool"
)

// FeeOf returns floor(gross * rate / FeeDenominator).
func FeeOf(gross *uint256.Int, rate uint32) (*uint256.Int, error) {
	return clmath.MulDiv(gross, uint256.NewInt(uint64(rate)), uint256.NewInt(FeeDenominator))
}

// splitFee returns the fee on gross at the current rate and what is left of it.
func (l *Ledger) splitFee(gross *uint256.Int) (fee, net *uint256.Int, err error) {
	fee, err = FeeOf(gross, l.feeRate)
	if err != nil {
		return nil, nil, err
	}
	return fee, new(uint256.Int).Sub(gross, fee), nil
}

// FeeRate returns the current fee rate in basis points.
func (l *Ledger) FeeRate() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeRate
}

// SetFeeRate changes the fee rate. Admin only.
func (l *Ledger) SetFeeRate(ctx context.Context, caller common.Address, rate uint32) error {
	return l.run(ctx, model.OpSetFeeRate, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrNotAdmin
		}
		if rate > MaxFeeRate {
			return fmt.Errorf("%w: %d > %d", ErrFeeRateTooHigh, rate, MaxFeeRate)
		}
		prev := l.feeRate
		l.feeRate = rate
		l.journal.Append(func() { l.feeRate = prev })

		l.logger.Info("fee rate changed", zap.Uint32("from", prev), zap.Uint32("to", rate))
		l.emit(model.LedgerEvent{Op: model.OpSetFeeRate, Caller: caller.Hex(), Fee: fmt.Sprint(rate)})
		return nil
	})
}

// SetFeeSink replaces the fee recipient. Admin only.
func (l *Ledger) SetFeeSink(ctx context.Context, caller common.Address, sink FeeSink) error {
	return l.run(ctx, model.OpSetFeeSink, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrNotAdmin
		}
		if sink == nil {
			return fmt.Errorf("%w: nil fee sink", ErrInvalidRoute)
		}
		prev := l.feeSink
		l.feeSink = sink
		l.journal.Append(func() { l.feeSink = prev })
		l.emit(model.LedgerEvent{Op: model.OpSetFeeSink, Caller: caller.Hex()})
		return nil
	})
}

// RegisterAsset bootstraps the pool pair of asset from the registry entry at
// configIndex. Admin only; an asset is registered once.
func (l *Ledger) RegisterAsset(ctx context.Context, caller common.Address, asset Asset, configIndex int) error {
	return l.run(ctx, model.OpRegisterAsset, func(ctx context.Context) error {
		if caller != l.admin {
			return ErrNotAdmin
		}
		addr := asset.Address()
		if addr == l.currency.Address() {
			return fmt.Errorf("%w: currency cannot be an asset", ErrAssetMismatch)
		}
		if _, ok := l.assets[addr]; ok {
			return fmt.Errorf("%w: %s", ErrAssetRegistered, addr.Hex())
		}
		cfg, err := l.pools.Get(configIndex)
		if err != nil {
			return err
		}
		pair, err := pool.NewPair(cfg)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", addr.Hex(), err)
		}
		l.assets[addr] = &assetEntry{token: asset, pair: pair, configIndex: configIndex, collateral: new(uint256.Int)}
		l.journal.Append(func() { delete(l.assets, addr) })

		l.logger.Info("asset registered",
			zap.String("asset", addr.Hex()),
			zap.Int("config_index", configIndex),
			zap.Int32("tick", pair.CurrencyToAsset.Tick()),
		)
		l.emit(model.LedgerEvent{Op: model.OpRegisterAsset, Caller: caller.Hex(), Asset: addr.Hex()})
		return nil
	})
}

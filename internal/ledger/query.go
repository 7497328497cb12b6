package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/model"
	"curveLedger/internal/pool"
)

// Position returns the live position tokenID.
func (l *Ledger) Position(tokenID uint64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[tokenID]
	if !ok {
		return Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, tokenID)
	}
	return pos.clone(), nil
}

// PositionsOfOwner returns the live positions held by owner, by token id.
func (l *Ledger) PositionsOfOwner(owner common.Address) []Position {
	return l.positionsOf(owner, func(Position) bool { return true })
}

// PositionsOfOwnerByAsset returns owner's live positions in asset, by token id.
func (l *Ledger) PositionsOfOwnerByAsset(owner, asset common.Address) []Position {
	return l.positionsOf(owner, func(p Position) bool { return p.Asset == asset })
}

func (l *Ledger) positionsOf(owner common.Address, keep func(Position) bool) []Position {
	l.indexMu.Lock()
	ids := make([]uint64, 0, len(l.owners[owner]))
	for id := range l.owners[owner] {
		ids = append(ids, id)
	}
	l.indexMu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		pos, ok := l.positions[id]
		if !ok {
			continue
		}
		if p := pos.clone(); keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Owners returns every live position with its owner, by token id.
func (l *Ledger) Owners() []model.PositionRecord {
	l.indexMu.Lock()
	owned := make(map[uint64]common.Address)
	for owner, ids := range l.owners {
		for id := range ids {
			owned[id] = owner
		}
	}
	l.indexMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.PositionRecord, 0, len(l.positions))
	for id, pos := range l.positions {
		out = append(out, model.PositionRecord{
			TokenID: id,
			Owner:   owned[id].Hex(),
			Asset:   pos.Asset.Hex(),
			Amount:  pos.Amount.Dec(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// TransferPosition moves tokenID to to through the ownership registry. The
// owner index follows through the registry's transfer notification.
func (l *Ledger) TransferPosition(ctx context.Context, caller, to common.Address, tokenID uint64) error {
	return l.run(ctx, model.OpTransfer, func(ctx context.Context) error {
		pos, ok := l.positions[tokenID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrPositionNotFound, tokenID)
		}
		from, err := l.registry.OwnerOf(tokenID)
		if err != nil {
			return err
		}
		if err := l.registry.TransferFrom(ctx, caller, from, to, tokenID); err != nil {
			return err
		}
		l.emit(model.LedgerEvent{
			Op:             model.OpTransfer,
			Caller:         caller.Hex(),
			TokenID:        tokenID,
			Asset:          pos.Asset.Hex(),
			PositionAmount: pos.Amount.Dec(),
		})
		return nil
	})
}

// Supply is the ledger's cumulative Currency accounting.
type Supply struct {
	Minted *uint256.Int
	Burned *uint256.Int
	Fees   *uint256.Int
}

func (l *Ledger) Supply() Supply {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Supply{Minted: l.minted.Clone(), Burned: l.burned.Clone(), Fees: l.fees.Clone()}
}

// Collateral returns the total locked in positions of asset.
func (l *Ledger) Collateral(asset common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, err := l.asset(asset)
	if err != nil {
		return nil, err
	}
	return entry.collateral.Clone(), nil
}

// CheckConservation verifies that the positions of asset add up to the
// ledger's tracked collateral and to its balance of the asset token.
func (l *Ledger) CheckConservation(asset common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, err := l.asset(asset)
	if err != nil {
		return err
	}
	sum := new(uint256.Int)
	for _, pos := range l.positions {
		if pos.Asset == asset {
			sum.Add(sum, pos.Amount)
		}
	}
	if !sum.Eq(entry.collateral) {
		return fmt.Errorf("%w: positions %s, tracked %s", ErrConservation, sum.Dec(), entry.collateral.Dec())
	}
	if balance := entry.token.BalanceOf(l.address); !sum.Eq(balance) {
		return fmt.Errorf("%w: positions %s, balance %s", ErrConservation, sum.Dec(), balance.Dec())
	}
	return nil
}

// Assets returns the registered assets in address order.
func (l *Ledger) Assets() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]common.Address, 0, len(l.assets))
	for addr := range l.assets {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// PairState describes an asset's pool pair.
type PairState struct {
	Asset           common.Address
	ConfigIndex     int
	CurrencyToAsset pool.State
	AssetToCurrency pool.State
}

func (l *Ledger) PoolState(asset common.Address) (PairState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, err := l.asset(asset)
	if err != nil {
		return PairState{}, err
	}
	return PairState{
		Asset:           asset,
		ConfigIndex:     entry.configIndex,
		CurrencyToAsset: entry.pair.CurrencyToAsset.State(),
		AssetToCurrency: entry.pair.AssetToCurrency.State(),
	}, nil
}

// CurveStates returns the persisted view of every registered pool.
func (l *Ledger) CurveStates() []model.CurveState {
	assets := l.Assets()
	out := make([]model.CurveState, 0, 2*len(assets))
	for _, asset := range assets {
		ps, err := l.PoolState(asset)
		if err != nil {
			continue
		}
		out = append(out,
			curveState(asset, "currency_to_asset", ps.CurrencyToAsset),
			curveState(asset, "asset_to_currency", ps.AssetToCurrency),
		)
	}
	return out
}

func curveState(asset common.Address, direction string, s pool.State) model.CurveState {
	return model.CurveState{
		Asset:        asset.Hex(),
		Direction:    direction,
		FeeTier:      s.FeeTier,
		TickSpacing:  s.TickSpacing,
		SqrtPriceX96: s.SqrtPriceX96.Dec(),
		Tick:         s.Tick,
		Liquidity:    s.Liquidity.Dec(),
		Balance0:     s.Balance0.String(),
		Balance1:     s.Balance1.String(),
		Swaps:        s.Swaps,
	}
}

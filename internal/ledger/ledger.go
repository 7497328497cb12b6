// Package ledger tracks collateral positions against the virtual pool pairs.
// Holders lock an Asset to mint Currency and repay Currency to release it.
// Every operation runs as one journaled unit: any error reverts the ledger
// and every collaborator sharing its journal.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/model"
	"curveLedger/internal/pool"
	"curveLedger/internal/state"
)

const (
	// FeeDenominator is the denominator of the fee rate, in basis points.
	FeeDenominator = 10_000
	// MaxFeeRate bounds the fee rate.
	MaxFeeRate = 1_000
)

// Config wires a ledger to its collaborators. Exchange and Market are
// optional; without them exchange routes and cash are unavailable.
type Config struct {
	Address  common.Address
	Admin    common.Address
	Currency Currency
	Registry OwnershipRegistry
	Pools    *pool.Registry
	FeeSink  FeeSink
	FeeRate  uint32
	Exchange Exchange
	Market   Exchange

	// Journal must be shared with every in-memory collaborator for their
	// effects to be reverted together with the ledger's.
	Journal *state.Journal
	Logger  *zap.Logger
	Metrics *Metrics
	Clock   func() time.Time
}

type assetEntry struct {
	token       Asset
	pair        *pool.Pair
	configIndex int
	collateral  *uint256.Int
}

type Ledger struct {
	mu       sync.Mutex
	address  common.Address
	admin    common.Address
	currency Currency
	registry OwnershipRegistry
	pools    *pool.Registry
	exchange Exchange
	market   Exchange
	journal  *state.Journal
	logger   *zap.Logger
	metrics  *Metrics
	clock    func() time.Time

	feeRate   uint32
	feeSink   FeeSink
	assets    map[common.Address]*assetEntry
	positions map[uint64]*Position
	nextID    uint64
	minted    *uint256.Int
	burned    *uint256.Int
	fees      *uint256.Int

	seq     uint64
	pending []model.LedgerEvent
	events  []model.LedgerEvent

	// indexMu guards owners. It is separate from mu because the ownership
	// registry reports transfers while an operation holds mu.
	indexMu sync.Mutex
	owners  map[common.Address]map[uint64]struct{}
}

type ctxKey struct{}

// New validates cfg and subscribes the ledger to the ownership registry.
func New(cfg Config) (*Ledger, error) {
	if cfg.Currency == nil || cfg.Registry == nil || cfg.Pools == nil || cfg.FeeSink == nil {
		return nil, errors.New("ledger: currency, registry, pools and fee sink are required")
	}
	if cfg.FeeRate > MaxFeeRate {
		return nil, ErrFeeRateTooHigh
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	journal := cfg.Journal
	if journal == nil {
		journal = state.NewJournal()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	l := &Ledger{
		address:   cfg.Address,
		admin:     cfg.Admin,
		currency:  cfg.Currency,
		registry:  cfg.Registry,
		pools:     cfg.Pools,
		exchange:  cfg.Exchange,
		market:    cfg.Market,
		journal:   journal,
		logger:    logger,
		metrics:   cfg.Metrics,
		clock:     clock,
		feeRate:   cfg.FeeRate,
		feeSink:   cfg.FeeSink,
		assets:    make(map[common.Address]*assetEntry),
		positions: make(map[uint64]*Position),
		nextID:    1,
		minted:    new(uint256.Int),
		burned:    new(uint256.Int),
		fees:      new(uint256.Int),
		owners:    make(map[common.Address]map[uint64]struct{}),
	}
	cfg.Registry.Subscribe(l.onTransfer)
	return l, nil
}

func (l *Ledger) Address() common.Address { return l.address }

// run executes fn as one atomic operation. Calls that re-enter the ledger
// through a collaborator carry the ledger's context marker and are rejected.
func (l *Ledger) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if ctx.Value(ctxKey{}) == l {
		l.metrics.observe(op, ErrReentrant)
		return ErrReentrant
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	done := l.metrics.time(op)
	defer done()

	mintedBefore, burnedBefore, feesBefore := l.minted, l.burned, l.fees
	id := l.journal.Snapshot()
	l.pending = l.pending[:0]

	if err := fn(context.WithValue(ctx, ctxKey{}, l)); err != nil {
		l.journal.RevertToSnapshot(id)
		l.pending = l.pending[:0]
		l.metrics.observe(op, err)
		l.logger.Debug("ledger operation rejected",
			zap.String("op", op),
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
		return err
	}
	l.journal.Commit(id)

	now := l.clock().Unix()
	for _, event := range l.pending {
		l.seq++
		event.Seq = l.seq
		event.Timestamp = now
		l.events = append(l.events, event)
	}
	l.pending = l.pending[:0]

	l.metrics.observe(op, nil)
	l.metrics.addSupply(
		new(uint256.Int).Sub(l.minted, mintedBefore),
		new(uint256.Int).Sub(l.burned, burnedBefore),
	)
	l.metrics.addFee(new(uint256.Int).Sub(l.fees, feesBefore))
	return nil
}

// emit queues an event for the running operation. Queued events are dropped
// if the operation fails.
func (l *Ledger) emit(event model.LedgerEvent) {
	if event.Code == "" {
		event.Code = "OK"
	}
	l.pending = append(l.pending, event)
}

// DrainEvents returns the committed events not yet drained, oldest first.
func (l *Ledger) DrainEvents() []model.LedgerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

func (l *Ledger) asset(addr common.Address) (*assetEntry, error) {
	entry, ok := l.assets[addr]
	if !ok {
		return nil, ErrAssetNotRegistered
	}
	return entry, nil
}

// authorize returns the live position id if caller owns or is approved on it.
func (l *Ledger) authorize(caller common.Address, id uint64) (*Position, error) {
	pos, ok := l.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}
	ok, err := l.registry.IsApprovedOrOwner(caller, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	return pos, nil
}

// The mutators below journal the previous value. They run with mu held, and
// so do their undo functions, which is why the undos do not lock.

func (l *Ledger) allocateID() uint64 {
	id := l.nextID
	l.nextID++
	l.journal.Append(func() { l.nextID = id })
	return id
}

func (l *Ledger) putPosition(pos *Position) {
	prev, had := l.positions[pos.TokenID]
	l.positions[pos.TokenID] = pos
	l.journal.Append(func() {
		if had {
			l.positions[pos.TokenID] = prev
		} else {
			delete(l.positions, pos.TokenID)
		}
	})
}

func (l *Ledger) deletePosition(id uint64) {
	prev, had := l.positions[id]
	if !had {
		return
	}
	delete(l.positions, id)
	l.journal.Append(func() { l.positions[id] = prev })
}

func (l *Ledger) setAmount(pos *Position, amount *uint256.Int) {
	prev := pos.Amount
	pos.Amount = amount
	l.journal.Append(func() { pos.Amount = prev })
}

func (l *Ledger) setCollateral(entry *assetEntry, amount *uint256.Int) {
	prev := entry.collateral
	entry.collateral = amount
	l.journal.Append(func() { entry.collateral = prev })
}

func (l *Ledger) mintCurrency(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := l.currency.Mint(ctx, l.address, to, amount); err != nil {
		return err
	}
	prev := l.minted
	l.minted = new(uint256.Int).Add(prev, amount)
	l.journal.Append(func() { l.minted = prev })
	return nil
}

// burnCurrency burns Currency held by the ledger.
func (l *Ledger) burnCurrency(ctx context.Context, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := l.currency.Burn(ctx, l.address, l.address, amount); err != nil {
		return err
	}
	prev := l.burned
	l.burned = new(uint256.Int).Add(prev, amount)
	l.journal.Append(func() { l.burned = prev })
	return nil
}

// chargeFee mints fee to the fee sink and notifies it.
func (l *Ledger) chargeFee(ctx context.Context, fee *uint256.Int) error {
	if fee.IsZero() {
		return nil
	}
	if err := l.mintCurrency(ctx, l.feeSink.Address(), fee); err != nil {
		return err
	}
	prev := l.fees
	l.fees = new(uint256.Int).Add(prev, fee)
	l.journal.Append(func() { l.fees = prev })
	return l.feeSink.Receive(ctx, l.currency.Address(), fee)
}

// onTransfer keeps the owner index in step with the ownership registry.
func (l *Ledger) onTransfer(from, to common.Address, id uint64) {
	l.indexMu.Lock()
	defer l.indexMu.Unlock()
	l.moveIndexLocked(from, to, id)
	l.journal.Append(func() {
		l.indexMu.Lock()
		defer l.indexMu.Unlock()
		l.moveIndexLocked(to, from, id)
	})
}

func (l *Ledger) moveIndexLocked(from, to common.Address, id uint64) {
	if from != (common.Address{}) {
		if ids, ok := l.owners[from]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(l.owners, from)
			}
		}
	}
	if to != (common.Address{}) {
		ids, ok := l.owners[to]
		if !ok {
			ids = make(map[uint64]struct{})
			l.owners[to] = ids
		}
		ids[id] = struct{}{}
	}
}

func signed(amount *uint256.Int, negative bool) string {
	if amount.IsZero() || !negative {
		return amount.Dec()
	}
	return "-" + amount.Dec()
}

package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"curveLedger/internal/exchange"
	"curveLedger/internal/ledger"
	"curveLedger/internal/nft"
	"curveLedger/internal/pool"
	"curveLedger/internal/state"
	"curveLedger/internal/token"
)

// TokenSpec describes an in-memory token.
type TokenSpec struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// AssetSpec is an Asset registered at startup with a pool registry entry.
type AssetSpec struct {
	TokenSpec
	ConfigIndex int
}

// PairSpec seeds one constant-product exchange pair.
type PairSpec struct {
	TokenA  common.Address
	TokenB  common.Address
	AmountA *uint256.Int
	AmountB *uint256.Int
	FeeBps  uint32
}

// ExchangeSpec configures the in-memory router. Provider is funded with the
// pair reserves before they are deposited.
type ExchangeSpec struct {
	Address  common.Address
	Provider common.Address
	Pairs    []PairSpec
}

// WorldConfig describes everything the ledger runs against during a replay.
type WorldConfig struct {
	Ledger   common.Address
	Admin    common.Address
	Funder   common.Address
	FeeSink  common.Address
	FeeRate  uint32
	Currency TokenSpec
	Assets   []AssetSpec
	// Tokens are extra tokens that only appear in exchange paths.
	Tokens   []TokenSpec
	Exchange *ExchangeSpec
	// Market prices cash against the exchange. Requires Exchange.
	Market  bool
	Pools   *pool.Registry
	Metrics *ledger.Metrics
	Logger  *zap.Logger
	// Start is the clock before the first timestamped operation.
	Start int64
}

// World is the ledger with its in-memory collaborators, all sharing one
// journal.
type World struct {
	Ledger   *ledger.Ledger
	Registry *nft.Registry
	Sink     *token.Sink
	Router   *exchange.Router

	journal  *state.Journal
	funder   common.Address
	currency common.Address
	tokens   map[common.Address]*token.ERC20
	now      int64
	logger   *zap.Logger
}

// NewWorld builds the tokens, the ownership registry, the optional exchange
// and the ledger, then registers every Asset.
func NewWorld(ctx context.Context, cfg WorldConfig) (*World, error) {
	if cfg.Pools == nil {
		return nil, fmt.Errorf("pool registry is required")
	}
	if cfg.Market && cfg.Exchange == nil {
		return nil, fmt.Errorf("market requires an exchange")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	j := state.NewJournal()
	w := &World{
		Registry: nft.NewRegistry(cfg.Ledger, j),
		Sink:     token.NewSink(cfg.FeeSink, j),
		journal:  j,
		funder:   cfg.Funder,
		currency: cfg.Currency.Address,
		tokens:   make(map[common.Address]*token.ERC20),
		now:      cfg.Start,
		logger:   logger,
	}

	specs := []TokenSpec{cfg.Currency}
	for _, a := range cfg.Assets {
		specs = append(specs, a.TokenSpec)
	}
	specs = append(specs, cfg.Tokens...)
	for _, spec := range specs {
		if _, dup := w.tokens[spec.Address]; dup {
			return nil, fmt.Errorf("token %s configured twice", spec.Address.Hex())
		}
		tok := token.NewERC20(spec.Address, spec.Symbol, spec.Decimals, j)
		tok.AddMinter(cfg.Funder)
		w.tokens[spec.Address] = tok
	}
	w.tokens[cfg.Currency.Address].AddMinter(cfg.Ledger)
	for _, a := range cfg.Assets {
		w.tokens[a.Address].AddMinter(cfg.Ledger)
	}

	var ex, market ledger.Exchange
	if cfg.Exchange != nil {
		if err := w.buildExchange(ctx, *cfg.Exchange); err != nil {
			return nil, err
		}
		ex = w.Router
		if cfg.Market {
			market = w.Router
		}
	}

	l, err := ledger.New(ledger.Config{
		Address:  cfg.Ledger,
		Admin:    cfg.Admin,
		Currency: w.tokens[cfg.Currency.Address],
		Registry: w.Registry,
		Pools:    cfg.Pools,
		FeeSink:  w.Sink,
		FeeRate:  cfg.FeeRate,
		Exchange: ex,
		Market:   market,
		Journal:  j,
		Logger:   logger,
		Metrics:  cfg.Metrics,
		Clock:    w.clock,
	})
	if err != nil {
		return nil, err
	}
	w.Ledger = l

	for _, a := range cfg.Assets {
		if err := l.RegisterAsset(ctx, cfg.Admin, w.tokens[a.Address], a.ConfigIndex); err != nil {
			return nil, fmt.Errorf("register asset %s: %w", a.Address.Hex(), err)
		}
	}
	logger.Info("world ready",
		zap.Int("tokens", len(w.tokens)),
		zap.Int("assets", len(cfg.Assets)),
		zap.Bool("exchange", cfg.Exchange != nil),
		zap.Bool("market", cfg.Market),
	)
	return w, nil
}

func (w *World) buildExchange(ctx context.Context, spec ExchangeSpec) error {
	w.Router = exchange.NewRouter(spec.Address, w.journal)
	for _, tok := range w.tokens {
		w.Router.RegisterToken(tok)
	}
	for i, pair := range spec.Pairs {
		err := w.atomic(func() error {
			for _, leg := range []struct {
				token  common.Address
				amount *uint256.Int
			}{{pair.TokenA, pair.AmountA}, {pair.TokenB, pair.AmountB}} {
				tok, err := w.Token(leg.token)
				if err != nil {
					return err
				}
				if err := tok.Mint(ctx, w.funder, spec.Provider, leg.amount); err != nil {
					return err
				}
				if err := tok.Approve(ctx, spec.Provider, spec.Address, leg.amount); err != nil {
					return err
				}
			}
			return w.Router.AddLiquidity(ctx, spec.Provider, pair.TokenA, pair.TokenB, pair.AmountA, pair.AmountB, pair.FeeBps)
		})
		if err != nil {
			return fmt.Errorf("exchange pair %d: %w", i, err)
		}
	}
	return nil
}

// Token returns the in-memory token at addr.
func (w *World) Token(addr common.Address) (*token.ERC20, error) {
	tok, ok := w.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %s", ErrInvalidOperation, addr.Hex())
	}
	return tok, nil
}

// Currency returns the Currency token.
func (w *World) Currency() *token.ERC20 { return w.tokens[w.currency] }

// Now returns the replay clock in unix seconds.
func (w *World) Now() int64 { return w.now }

// advance moves the clock to ts. Zero and earlier timestamps leave it as is.
func (w *World) advance(ts int64) {
	if ts > w.now {
		w.now = ts
	}
}

func (w *World) clock() time.Time { return time.Unix(w.now, 0) }

// atomic runs fn under a journal snapshot so that operations outside the
// ledger are all-or-nothing as well.
func (w *World) atomic(fn func() error) error {
	id := w.journal.Snapshot()
	if err := fn(); err != nil {
		w.journal.RevertToSnapshot(id)
		return err
	}
	w.journal.Commit(id)
	return nil
}

package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/exchange"
)

// RouteKind selects how Currency enters or leaves the ledger.
type RouteKind uint8

const (
	// Direct moves Currency itself.
	Direct RouteKind = iota
	// ViaExchange converts through the exchange along Path.
	ViaExchange
)

func (k RouteKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case ViaExchange:
		return "exchange"
	default:
		return fmt.Sprintf("route(%d)", uint8(k))
	}
}

// Route is a tagged variant: Direct carries no path, ViaExchange carries the
// exchange path.
type Route struct {
	Kind RouteKind
	Path []common.Address
}

func DirectRoute() Route { return Route{Kind: Direct} }

func ExchangeRoute(path ...common.Address) Route {
	return Route{Kind: ViaExchange, Path: path}
}

// OutputSpec says where Currency paid out by the ledger goes. An exchange
// path must start with Currency. MinOut is in the path's last token.
type OutputSpec struct {
	Route  Route
	MinOut *uint256.Int
}

// InputSpec says where Currency owed to the ledger comes from. An exchange
// path must end with Currency and the caller pays in its first token.
type InputSpec struct {
	Route Route
}

func (l *Ledger) checkOutput(spec OutputSpec) error {
	switch spec.Route.Kind {
	case Direct:
		return nil
	case ViaExchange:
		if l.exchange == nil {
			return fmt.Errorf("%w: no exchange configured", ErrInvalidRoute)
		}
		if len(spec.Route.Path) < 2 || spec.Route.Path[0] != l.currency.Address() {
			return fmt.Errorf("%w: output path must start with currency", ErrInvalidRoute)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRoute, spec.Route.Kind)
	}
}

func (l *Ledger) checkInput(spec InputSpec) error {
	switch spec.Route.Kind {
	case Direct:
		return nil
	case ViaExchange:
		path := spec.Route.Path
		if l.exchange == nil {
			return fmt.Errorf("%w: no exchange configured", ErrInvalidRoute)
		}
		if len(path) < 2 || path[len(path)-1] != l.currency.Address() {
			return fmt.Errorf("%w: input path must end with currency", ErrInvalidRoute)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidRoute, spec.Route.Kind)
	}
}

// payOut delivers amount of freshly minted Currency to recipient through
// spec and returns what the recipient received.
func (l *Ledger) payOut(ctx context.Context, recipient common.Address, amount *uint256.Int, spec OutputSpec) (*uint256.Int, error) {
	if spec.Route.Kind == Direct {
		if spec.MinOut != nil && amount.Lt(spec.MinOut) {
			return nil, fmt.Errorf("%w: got %s, minimum %s", ErrMinOutNotMet, amount.Dec(), spec.MinOut.Dec())
		}
		if amount.IsZero() {
			return new(uint256.Int), nil
		}
		if err := l.mintCurrency(ctx, recipient, amount); err != nil {
			return nil, err
		}
		return amount.Clone(), nil
	}

	if err := l.mintCurrency(ctx, l.address, amount); err != nil {
		return nil, err
	}
	return l.swapOut(ctx, recipient, amount, spec)
}

// swapOut sells Currency already held by the ledger along spec's path.
func (l *Ledger) swapOut(ctx context.Context, recipient common.Address, amount *uint256.Int, spec OutputSpec) (*uint256.Int, error) {
	if spec.Route.Kind == Direct {
		if spec.MinOut != nil && amount.Lt(spec.MinOut) {
			return nil, fmt.Errorf("%w: got %s, minimum %s", ErrMinOutNotMet, amount.Dec(), spec.MinOut.Dec())
		}
		if amount.IsZero() {
			return new(uint256.Int), nil
		}
		if err := l.currency.Transfer(ctx, l.address, recipient, amount); err != nil {
			return nil, err
		}
		return amount.Clone(), nil
	}

	minOut := spec.MinOut
	if amount.IsZero() {
		if minOut != nil && !minOut.IsZero() {
			return nil, fmt.Errorf("%w: nothing to route", ErrMinOutNotMet)
		}
		return new(uint256.Int), nil
	}
	if err := l.currency.Approve(ctx, l.address, l.exchange.Address(), amount); err != nil {
		return nil, err
	}
	out, err := l.exchange.ExactInput(ctx, exchange.ExactInputParams{
		Payer:            l.address,
		Recipient:        recipient,
		Path:             spec.Route.Path,
		AmountIn:         amount,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange output: %w", err)
	}
	return out, nil
}

// quoteIn returns what payer would spend through spec to deliver amount of
// Currency, for the maxPay check.
func (l *Ledger) quoteIn(amount *uint256.Int, spec InputSpec) (*uint256.Int, error) {
	if spec.Route.Kind == Direct || amount.IsZero() {
		return amount.Clone(), nil
	}
	in, err := l.exchange.QuoteExactOutput(spec.Route.Path, amount)
	if err != nil {
		return nil, fmt.Errorf("exchange input quote: %w", err)
	}
	return in, nil
}

// pullAndBurn collects amount of Currency from payer through spec and burns
// it. It returns what payer spent in the route's input token.
func (l *Ledger) pullAndBurn(ctx context.Context, payer common.Address, amount, maxPay *uint256.Int, spec InputSpec) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	var spent *uint256.Int
	if spec.Route.Kind == Direct {
		if err := l.currency.TransferFrom(ctx, l.address, payer, l.address, amount); err != nil {
			return nil, err
		}
		spent = amount.Clone()
	} else {
		in, err := l.exchange.ExactOutput(ctx, exchange.ExactOutputParams{
			Payer:           payer,
			Recipient:       l.address,
			Path:            spec.Route.Path,
			AmountOut:       amount,
			AmountInMaximum: maxPay,
		})
		if err != nil {
			return nil, fmt.Errorf("exchange input: %w", err)
		}
		spent = in
	}
	if err := l.burnCurrency(ctx, amount); err != nil {
		return nil, err
	}
	return spent, nil
}

// checkMaxPay fails when paying amount through spec would cost more than maxPay.
func (l *Ledger) checkMaxPay(amount, maxPay *uint256.Int, spec InputSpec) error {
	cost, err := l.quoteIn(amount, spec)
	if err != nil {
		return err
	}
	if maxPay != nil && cost.Gt(maxPay) {
		return fmt.Errorf("%w: need %s, maximum %s", ErrMaxPayExceeded, cost.Dec(), maxPay.Dec())
	}
	return nil
}

// Package exchange is an in-memory multi-hop swap router over
// constant-product pairs. It stands in for the external exchange and market
// the ledger routes Currency and Asset through.
package exchange

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/errcode"
	"curveLedger/internal/state"
)

var (
	ErrInvalidPath           = errcode.New(errcode.InvalidRoute, "exchange: path needs at least two distinct hops")
	ErrPairNotFound          = errcode.New(errcode.PairNotFound, "exchange: pair not found")
	ErrTokenNotFound         = errcode.New(errcode.TokenNotFound, "exchange: token not registered")
	ErrInsufficientLiquidity = errcode.New(errcode.InsufficientLiquidity, "exchange: insufficient liquidity")
	ErrMinOutNotMet          = errcode.New(errcode.MinOutNotMet, "exchange: output below minimum")
	ErrMaxInExceeded         = errcode.New(errcode.MaxPayExceeded, "exchange: input above maximum")
	ErrZeroAmount            = errcode.New(errcode.ZeroAmount, "exchange: zero amount")
	ErrMathOverflow          = errcode.New(errcode.MathOverflow, "exchange: overflow")
	ErrInvalidFee            = errcode.New(errcode.InvalidConfig, "exchange: fee must be below 10000 bps")
)

// Token is the part of a fungible token the router moves.
type Token interface {
	Address() common.Address
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
}

// ExactInputParams sells AmountIn of Path[0] for at least AmountOutMinimum
// of the last token. Payer must have approved the router for the input.
type ExactInputParams struct {
	Payer            common.Address
	Recipient        common.Address
	Path             []common.Address
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// ExactOutputParams buys AmountOut of the last token of Path for at most
// AmountInMaximum of Path[0].
type ExactOutputParams struct {
	Payer           common.Address
	Recipient       common.Address
	Path            []common.Address
	AmountOut       *uint256.Int
	AmountInMaximum *uint256.Int
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

func keyOf(a, b common.Address) pairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return pairKey{token0: a, token1: b}
}

type Router struct {
	mu      sync.Mutex
	address common.Address
	journal *state.Journal
	tokens  map[common.Address]Token
	pairs   map[pairKey]*Pair
}

func NewRouter(address common.Address, journal *state.Journal) *Router {
	return &Router{
		address: address,
		journal: journal,
		tokens:  make(map[common.Address]Token),
		pairs:   make(map[pairKey]*Pair),
	}
}

func (r *Router) Address() common.Address { return r.address }

// RegisterToken makes tok usable in paths.
func (r *Router) RegisterToken(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tok.Address()] = tok
}

// AddLiquidity pulls amountA and amountB from provider into the pair of
// tokenA and tokenB, creating it with feeBps if needed. An existing pair
// keeps its fee.
func (r *Router) AddLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, amountA, amountB *uint256.Int, feeBps uint32) error {
	if tokenA == tokenB {
		return ErrInvalidPath
	}
	if feeBps >= BpsDenominator {
		return ErrInvalidFee
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tokA, ok := r.tokens[tokenA]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenA.Hex())
	}
	tokB, ok := r.tokens[tokenB]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenB.Hex())
	}
	if err := tokA.TransferFrom(ctx, r.address, provider, r.address, amountA); err != nil {
		return err
	}
	if err := tokB.TransferFrom(ctx, r.address, provider, r.address, amountB); err != nil {
		return err
	}

	key := keyOf(tokenA, tokenB)
	pair, ok := r.pairs[key]
	if !ok {
		pair = &Pair{token0: key.token0, token1: key.token1, reserve0: new(uint256.Int), reserve1: new(uint256.Int), feeBps: feeBps}
		r.pairs[key] = pair
		r.journal.Append(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.pairs, key)
		})
	}
	add0, add1 := amountA, amountB
	if tokenA != key.token0 {
		add0, add1 = amountB, amountA
	}
	r.setReservesLocked(pair, new(uint256.Int).Add(pair.reserve0, add0), new(uint256.Int).Add(pair.reserve1, add1))
	return nil
}

// Pair returns the state of the pair of a and b.
func (r *Router) Pair(a, b common.Address) (PairState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair, ok := r.pairs[keyOf(a, b)]
	if !ok {
		return PairState{}, ErrPairNotFound
	}
	return pair.state(), nil
}

func (r *Router) QuoteExactInput(path []common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	amounts, err := r.amountsOutLocked(path, amountIn)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

func (r *Router) QuoteExactOutput(path []common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	amounts, err := r.amountsInLocked(path, amountOut)
	if err != nil {
		return nil, err
	}
	return amounts[0], nil
}

// ExactInput runs a multi-hop exact-input swap and returns the output amount.
func (r *Router) ExactInput(ctx context.Context, params ExactInputParams) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amounts, err := r.amountsOutLocked(params.Path, params.AmountIn)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if params.AmountOutMinimum != nil && out.Lt(params.AmountOutMinimum) {
		return nil, fmt.Errorf("%w: got %s, minimum %s", ErrMinOutNotMet, out.Dec(), params.AmountOutMinimum.Dec())
	}
	if err := r.settleLocked(ctx, params.Payer, params.Recipient, params.Path, amounts); err != nil {
		return nil, err
	}
	return out, nil
}

// ExactOutput runs a multi-hop exact-output swap and returns the input spent.
func (r *Router) ExactOutput(ctx context.Context, params ExactOutputParams) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amounts, err := r.amountsInLocked(params.Path, params.AmountOut)
	if err != nil {
		return nil, err
	}
	in := amounts[0]
	if params.AmountInMaximum != nil && in.Gt(params.AmountInMaximum) {
		return nil, fmt.Errorf("%w: need %s, maximum %s", ErrMaxInExceeded, in.Dec(), params.AmountInMaximum.Dec())
	}
	if err := r.settleLocked(ctx, params.Payer, params.Recipient, params.Path, amounts); err != nil {
		return nil, err
	}
	return in, nil
}

// settleLocked pulls the input, moves every hop's reserves and pays the
// output. amounts[i] is the amount of path[i] flowing through the route.
func (r *Router) settleLocked(ctx context.Context, payer, recipient common.Address, path []common.Address, amounts []*uint256.Int) error {
	tokenIn := r.tokens[path[0]]
	if err := tokenIn.TransferFrom(ctx, r.address, payer, r.address, amounts[0]); err != nil {
		return err
	}
	for i := 0; i < len(path)-1; i++ {
		pair := r.pairs[keyOf(path[i], path[i+1])]
		in, out := amounts[i], amounts[i+1]
		if path[i] == pair.token0 {
			r.setReservesLocked(pair, new(uint256.Int).Add(pair.reserve0, in), new(uint256.Int).Sub(pair.reserve1, out))
		} else {
			r.setReservesLocked(pair, new(uint256.Int).Sub(pair.reserve0, out), new(uint256.Int).Add(pair.reserve1, in))
		}
	}
	tokenOut := r.tokens[path[len(path)-1]]
	return tokenOut.Transfer(ctx, r.address, recipient, amounts[len(amounts)-1])
}

func (r *Router) amountsOutLocked(path []common.Address, amountIn *uint256.Int) ([]*uint256.Int, error) {
	if err := r.checkPathLocked(path); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrZeroAmount
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn.Clone()
	for i := 0; i < len(path)-1; i++ {
		out, err := r.pairs[keyOf(path[i], path[i+1])].amountOut(path[i], amounts[i])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if out.IsZero() {
			return nil, fmt.Errorf("hop %d: %w", i, ErrInsufficientLiquidity)
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

func (r *Router) amountsInLocked(path []common.Address, amountOut *uint256.Int) ([]*uint256.Int, error) {
	if err := r.checkPathLocked(path); err != nil {
		return nil, err
	}
	if amountOut == nil || amountOut.IsZero() {
		return nil, ErrZeroAmount
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[len(path)-1] = amountOut.Clone()
	for i := len(path) - 1; i > 0; i-- {
		in, err := r.pairs[keyOf(path[i-1], path[i])].amountIn(path[i-1], amounts[i])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i-1, err)
		}
		amounts[i-1] = in
	}
	return amounts, nil
}

func (r *Router) checkPathLocked(path []common.Address) error {
	if len(path) < 2 {
		return ErrInvalidPath
	}
	for i, addr := range path {
		if _, ok := r.tokens[addr]; !ok {
			return fmt.Errorf("%w: %s", ErrTokenNotFound, addr.Hex())
		}
		if i == 0 {
			continue
		}
		if path[i-1] == addr {
			return ErrInvalidPath
		}
		if _, ok := r.pairs[keyOf(path[i-1], addr)]; !ok {
			return fmt.Errorf("%w: %s/%s", ErrPairNotFound, path[i-1].Hex(), addr.Hex())
		}
	}
	return nil
}

func (r *Router) setReservesLocked(pair *Pair, reserve0, reserve1 *uint256.Int) {
	prev0, prev1 := pair.reserve0, pair.reserve1
	pair.reserve0, pair.reserve1 = reserve0, reserve1
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		pair.reserve0, pair.reserve1 = prev0, prev1
	})
}

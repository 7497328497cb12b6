package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/exchange"
)

// Token is the fungible-token surface the ledger uses.
type Token interface {
	Address() common.Address
	BalanceOf(owner common.Address) *uint256.Int
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) error
}

// Currency is the base token. The ledger must be one of its minters.
type Currency interface {
	Token
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, caller, from common.Address, amount *uint256.Int) error
}

// Asset is a project token. Mint is the issuance hook used by leveraged
// operations.
type Asset interface {
	Token
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error
}

// FeeSink is notified of every fee delivered to its address.
type FeeSink interface {
	Address() common.Address
	Receive(ctx context.Context, token common.Address, amount *uint256.Int) error
}

// OwnershipRegistry holds the transferable ownership of positions.
type OwnershipRegistry interface {
	OwnerOf(tokenID uint64) (common.Address, error)
	IsApprovedOrOwner(spender common.Address, tokenID uint64) (bool, error)
	Mint(ctx context.Context, caller, to common.Address, tokenID uint64) error
	Burn(ctx context.Context, caller common.Address, tokenID uint64) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, tokenID uint64) error
	Subscribe(fn func(from, to common.Address, tokenID uint64))
}

// Exchange converts tokens along an opaque path. The market price source used
// by cash has the same surface.
type Exchange interface {
	Address() common.Address
	QuoteExactInput(path []common.Address, amountIn *uint256.Int) (*uint256.Int, error)
	QuoteExactOutput(path []common.Address, amountOut *uint256.Int) (*uint256.Int, error)
	ExactInput(ctx context.Context, params exchange.ExactInputParams) (*uint256.Int, error)
	ExactOutput(ctx context.Context, params exchange.ExactOutputParams) (*uint256.Int, error)
}

// Position is a snapshot of a collateral position.
type Position struct {
	TokenID uint64
	Asset   common.Address
	Amount  *uint256.Int
}

func (p Position) clone() Position {
	return Position{TokenID: p.TokenID, Asset: p.Asset, Amount: p.Amount.Clone()}
}

// OpenResult is returned by Open and Grow.
type OpenResult struct {
	Position Position
	// Gross is the Currency realized on the curve before the fee.
	Gross *uint256.Int
	Fee   *uint256.Int
	// AmountOut is what the caller received, in the output route's token.
	AmountOut *uint256.Int
}

// LeveragedResult is returned by LeveragedOpen and LeveragedGrow.
type LeveragedResult struct {
	Position  Position
	OspDelta  *uint256.Int
	Gross     *uint256.Int
	Fee       *uint256.Int
	PayAmount *uint256.Int
	// AmountIn is what the caller spent, in the input route's token.
	AmountIn *uint256.Int
}

type RedeemResult struct {
	Position   Position
	AmountPaid *uint256.Int
	AmountIn   *uint256.Int
	Destroyed  bool
}

type CashResult struct {
	Position  Position
	Proceeds  *uint256.Int
	Cost      *uint256.Int
	AmountOut *uint256.Int
	Destroyed bool
}

type SplitResult struct {
	Position    Position
	NewPosition Position
	Paid        *uint256.Int
	AmountIn    *uint256.Int
}

type MergeResult struct {
	Position  Position
	Consumed  uint64
	Gross     *uint256.Int
	Fee       *uint256.Int
	Refund    *uint256.Int
	AmountOut *uint256.Int
}

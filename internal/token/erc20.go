// Package token holds in-memory fungible tokens and the fee sink used by the
// ledger. Every mutation is recorded in a shared journal.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/errcode"
	"curveLedger/internal/state"
)

var (
	ErrInsufficientBalance   = errcode.New(errcode.InsufficientBalance, "token: insufficient balance")
	ErrInsufficientAllowance = errcode.New(errcode.InsufficientAllowance, "token: insufficient allowance")
	ErrNotMinter             = errcode.New(errcode.NotMinter, "token: caller is not a minter")
)

// MaxAllowance is treated as an allowance that never decreases.
var MaxAllowance = new(uint256.Int).SetAllOne()

// ERC20 is a fungible token with a set of minters allowed to mint and burn.
type ERC20 struct {
	mu       sync.Mutex
	address  common.Address
	symbol   string
	decimals uint8
	journal  *state.Journal

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
	minters     map[common.Address]bool
}

func NewERC20(address common.Address, symbol string, decimals uint8, journal *state.Journal) *ERC20 {
	return &ERC20{
		address:     address,
		symbol:      symbol,
		decimals:    decimals,
		journal:     journal,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
		minters:     make(map[common.Address]bool),
	}
}

// AddMinter lets minter call Mint and Burn. It is configuration and is not
// journaled.
func (t *ERC20) AddMinter(minter common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minters[minter] = true
}

func (t *ERC20) Address() common.Address { return t.address }

func (t *ERC20) Symbol() string { return t.symbol }

func (t *ERC20) Decimals() uint8 { return t.decimals }

func (t *ERC20) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSupply.Clone()
}

func (t *ERC20) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(owner).Clone()
}

func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowanceLocked(owner, spender).Clone()
}

// Approve sets spender's allowance over owner's balance.
func (t *ERC20) Approve(_ context.Context, owner, spender common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowanceLocked(owner, spender, amount.Clone())
	return nil
}

func (t *ERC20) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance
// unless spender is from.
func (t *ERC20) TransferFrom(_ context.Context, spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spender != from {
		allowed := t.allowanceLocked(from, spender)
		if allowed.Lt(amount) {
			return fmt.Errorf("%w: %s allows %s, need %s", ErrInsufficientAllowance, t.symbol, allowed.Dec(), amount.Dec())
		}
		if !allowed.Eq(MaxAllowance) {
			t.setAllowanceLocked(from, spender, new(uint256.Int).Sub(allowed, amount))
		}
	}
	return t.moveLocked(from, to, amount)
}

func (t *ERC20) Mint(_ context.Context, caller, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.minters[caller] {
		return fmt.Errorf("%w: %s mint by %s", ErrNotMinter, t.symbol, caller.Hex())
	}
	t.setSupplyLocked(new(uint256.Int).Add(t.totalSupply, amount))
	t.setBalanceLocked(to, new(uint256.Int).Add(t.balanceLocked(to), amount))
	return nil
}

func (t *ERC20) Burn(_ context.Context, caller, from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.minters[caller] {
		return fmt.Errorf("%w: %s burn by %s", ErrNotMinter, t.symbol, caller.Hex())
	}
	balance := t.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s burn %s from %s holding %s", ErrInsufficientBalance, t.symbol, amount.Dec(), from.Hex(), balance.Dec())
	}
	t.setBalanceLocked(from, new(uint256.Int).Sub(balance, amount))
	t.setSupplyLocked(new(uint256.Int).Sub(t.totalSupply, amount))
	return nil
}

func (t *ERC20) moveLocked(from, to common.Address, amount *uint256.Int) error {
	balance := t.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, need %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), t.symbol, amount.Dec())
	}
	if from == to || amount.IsZero() {
		return nil
	}
	t.setBalanceLocked(from, new(uint256.Int).Sub(balance, amount))
	t.setBalanceLocked(to, new(uint256.Int).Add(t.balanceLocked(to), amount))
	return nil
}

func (t *ERC20) balanceLocked(owner common.Address) *uint256.Int {
	if balance, ok := t.balances[owner]; ok {
		return balance
	}
	return new(uint256.Int)
}

func (t *ERC20) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if allowed, ok := t.allowances[owner][spender]; ok {
		return allowed
	}
	return new(uint256.Int)
}

// The setters below journal the previous value. Undo functions take the
// token lock themselves because the journal replays them outside it.

func (t *ERC20) setBalanceLocked(owner common.Address, value *uint256.Int) {
	prev, had := t.balances[owner]
	t.balances[owner] = value
	t.journal.Append(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if had {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

func (t *ERC20) setAllowanceLocked(owner, spender common.Address, value *uint256.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	prev, had := spenders[spender]
	spenders[spender] = value
	t.journal.Append(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if had {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	})
}

func (t *ERC20) setSupplyLocked(value *uint256.Int) {
	prev := t.totalSupply
	t.totalSupply = value
	t.journal.Append(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.totalSupply = prev
	})
}

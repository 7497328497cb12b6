// Package nft is an in-memory ownership registry for position ids.
package nft

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"curveLedger/internal/errcode"
	"curveLedger/internal/state"
)

var (
	ErrTokenNotFound = errcode.New(errcode.TokenNotFound, "nft: token does not exist")
	ErrUnauthorized  = errcode.New(errcode.Unauthorized, "nft: caller is not owner nor approved")
	ErrNotMinter     = errcode.New(errcode.NotMinter, "nft: caller is not the minter")
	ErrExists        = errcode.New(errcode.DuplicatePosition, "nft: token already minted")
)

// TransferFunc observes every ownership change. Mints have a zero from and
// burns a zero to.
type TransferFunc = func(from, to common.Address, tokenID uint64)

type Registry struct {
	mu        sync.Mutex
	minter    common.Address
	journal   *state.Journal
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	balances  map[common.Address]uint64
	listeners []TransferFunc
}

func NewRegistry(minter common.Address, journal *state.Journal) *Registry {
	return &Registry{
		minter:    minter,
		journal:   journal,
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		balances:  make(map[common.Address]uint64),
	}
}

// Subscribe registers fn for ownership changes. Listeners run after the
// registry lock is released, in subscription order.
func (r *Registry) Subscribe(fn TransferFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) OwnerOf(tokenID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return owner, nil
}

func (r *Registry) BalanceOf(owner common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[owner]
}

func (r *Registry) GetApproved(tokenID uint64) common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.approvals[tokenID]
}

func (r *Registry) IsApprovedForAll(owner, operator common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operators[owner][operator]
}

// IsApprovedOrOwner reports whether spender may act on tokenID.
func (r *Registry) IsApprovedOrOwner(spender common.Address, tokenID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return r.approvedLocked(owner, spender, tokenID), nil
}

func (r *Registry) approvedLocked(owner, spender common.Address, tokenID uint64) bool {
	return spender == owner || r.approvals[tokenID] == spender || r.operators[owner][spender]
}

func (r *Registry) Mint(_ context.Context, caller, to common.Address, tokenID uint64) error {
	r.mu.Lock()
	if caller != r.minter {
		r.mu.Unlock()
		return ErrNotMinter
	}
	if _, ok := r.owners[tokenID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrExists, tokenID)
	}
	r.setOwnerLocked(tokenID, to, true)
	r.addBalanceLocked(to, 1)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, common.Address{}, to, tokenID)
	return nil
}

func (r *Registry) Burn(_ context.Context, caller common.Address, tokenID uint64) error {
	r.mu.Lock()
	if caller != r.minter {
		r.mu.Unlock()
		return ErrNotMinter
	}
	owner, ok := r.owners[tokenID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	r.clearApprovalLocked(tokenID)
	r.setOwnerLocked(tokenID, common.Address{}, false)
	r.addBalanceLocked(owner, -1)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, owner, common.Address{}, tokenID)
	return nil
}

// TransferFrom moves tokenID from from to to on behalf of spender.
func (r *Registry) TransferFrom(_ context.Context, spender, from, to common.Address, tokenID uint64) error {
	r.mu.Lock()
	owner, ok := r.owners[tokenID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	if owner != from || !r.approvedLocked(owner, spender, tokenID) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s on %d", ErrUnauthorized, spender.Hex(), tokenID)
	}
	r.clearApprovalLocked(tokenID)
	r.setOwnerLocked(tokenID, to, true)
	r.addBalanceLocked(from, -1)
	r.addBalanceLocked(to, 1)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, from, to, tokenID)
	return nil
}

// Approve lets approved move tokenID. Only the owner or an operator may call it.
func (r *Registry) Approve(_ context.Context, caller, approved common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	if caller != owner && !r.operators[owner][caller] {
		return fmt.Errorf("%w: %s on %d", ErrUnauthorized, caller.Hex(), tokenID)
	}
	prev, had := r.approvals[tokenID]
	r.approvals[tokenID] = approved
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.approvals[tokenID] = prev
		} else {
			delete(r.approvals, tokenID)
		}
	})
	return nil
}

func (r *Registry) SetApprovalForAll(_ context.Context, owner, operator common.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops, ok := r.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		r.operators[owner] = ops
	}
	prev := ops[operator]
	ops[operator] = approved
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.operators[owner][operator] = prev
	})
	return nil
}

func (r *Registry) setOwnerLocked(tokenID uint64, owner common.Address, present bool) {
	prev, had := r.owners[tokenID]
	if present {
		r.owners[tokenID] = owner
	} else {
		delete(r.owners, tokenID)
	}
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if had {
			r.owners[tokenID] = prev
		} else {
			delete(r.owners, tokenID)
		}
	})
}

func (r *Registry) clearApprovalLocked(tokenID uint64) {
	prev, had := r.approvals[tokenID]
	if !had {
		return
	}
	delete(r.approvals, tokenID)
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.approvals[tokenID] = prev
	})
}

func (r *Registry) addBalanceLocked(owner common.Address, delta int64) {
	prev := r.balances[owner]
	r.balances[owner] = uint64(int64(prev) + delta)
	r.journal.Append(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.balances[owner] = prev
	})
}

func notify(listeners []TransferFunc, from, to common.Address, tokenID uint64) {
	for _, fn := range listeners {
		fn(from, to, tokenID)
	}
}

package nft

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"curveLedger/internal/errcode"
	"curveLedger/internal/state"
)

var (
	minter   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

type transfer struct {
	from, to common.Address
	id       uint64
}

func TestMintTransferBurnNotifies(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg := NewRegistry(minter, nil)
	var seen []transfer
	reg.Subscribe(func(from, to common.Address, id uint64) {
		seen = append(seen, transfer{from, to, id})
	})

	require.NoError(reg.Mint(ctx, minter, alice, 1))
	require.ErrorIs(reg.Mint(ctx, minter, bob, 1), ErrExists)
	require.ErrorIs(reg.Mint(ctx, alice, bob, 2), ErrNotMinter)

	require.NoError(reg.TransferFrom(ctx, alice, alice, bob, 1))
	owner, err := reg.OwnerOf(1)
	require.NoError(err)
	require.Equal(bob, owner)
	require.Equal(uint64(0), reg.BalanceOf(alice))
	require.Equal(uint64(1), reg.BalanceOf(bob))

	require.NoError(reg.Burn(ctx, minter, 1))
	_, err = reg.OwnerOf(1)
	require.ErrorIs(err, ErrTokenNotFound)
	require.Equal(errcode.TokenNotFound, errcode.Of(err))

	require.Equal([]transfer{
		{common.Address{}, alice, 1},
		{alice, bob, 1},
		{bob, common.Address{}, 1},
	}, seen)
}

func TestApprovals(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	reg := NewRegistry(minter, nil)
	require.NoError(reg.Mint(ctx, minter, alice, 7))

	ok, err := reg.IsApprovedOrOwner(bob, 7)
	require.NoError(err)
	require.False(ok)
	require.ErrorIs(reg.TransferFrom(ctx, bob, alice, bob, 7), ErrUnauthorized)
	require.ErrorIs(reg.Approve(ctx, bob, bob, 7), ErrUnauthorized)

	require.NoError(reg.Approve(ctx, alice, bob, 7))
	ok, err = reg.IsApprovedOrOwner(bob, 7)
	require.NoError(err)
	require.True(ok)

	require.NoError(reg.TransferFrom(ctx, bob, alice, bob, 7))
	require.Equal(common.Address{}, reg.GetApproved(7))

	require.NoError(reg.SetApprovalForAll(ctx, bob, operator, true))
	require.True(reg.IsApprovedForAll(bob, operator))
	require.NoError(reg.TransferFrom(ctx, operator, bob, alice, 7))

	_, err = reg.IsApprovedOrOwner(bob, 99)
	require.ErrorIs(err, ErrTokenNotFound)
}

func TestJournalRevertRestoresOwnership(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	j := state.NewJournal()

	reg := NewRegistry(minter, j)
	require.NoError(reg.Mint(ctx, minter, alice, 3))
	require.NoError(reg.Approve(ctx, alice, operator, 3))
	j.Commit(j.Snapshot())

	id := j.Snapshot()
	require.NoError(reg.TransferFrom(ctx, operator, alice, bob, 3))
	require.NoError(reg.Mint(ctx, minter, bob, 4))
	require.NoError(reg.Burn(ctx, minter, 3))
	j.RevertToSnapshot(id)

	owner, err := reg.OwnerOf(3)
	require.NoError(err)
	require.Equal(alice, owner)
	require.Equal(operator, reg.GetApproved(3))
	require.Equal(uint64(1), reg.BalanceOf(alice))
	require.Equal(uint64(0), reg.BalanceOf(bob))
	_, err = reg.OwnerOf(4)
	require.ErrorIs(err, ErrTokenNotFound)
}

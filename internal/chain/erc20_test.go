package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type stubCaller struct {
	resp  []byte
	err   error
	calls []ethereum.CallMsg
	block *big.Int
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	s.calls = append(s.calls, msg)
	s.block = blockNumber
	return s.resp, s.err
}

func TestBalanceOf(t *testing.T) {
	parsed, err := BalanceOfABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	resp, err := parsed.Methods["balanceOf"].Outputs.Pack(want)
	if err != nil {
		t.Fatalf("pack output: %v", err)
	}

	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	caller := &stubCaller{resp: resp}

	got, err := BalanceOf(context.Background(), caller, token, owner, big.NewInt(42))
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("balance %s, want %s", got, want)
	}
	if len(caller.calls) != 1 || *caller.calls[0].To != token {
		t.Fatalf("call not sent to token: %+v", caller.calls)
	}
	if !bytes.HasSuffix(caller.calls[0].Data, owner.Bytes()) {
		t.Fatalf("owner not encoded in call data")
	}
	if caller.block.Int64() != 42 {
		t.Fatalf("block %v, want 42", caller.block)
	}
}

func TestBalanceOfErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := BalanceOf(ctx, nil, common.Address{}, common.Address{}, nil); err == nil {
		t.Fatalf("expected error for nil caller")
	}
	if _, err := BalanceOf(ctx, &stubCaller{err: errors.New("rpc down")}, common.Address{}, common.Address{}, nil); err == nil {
		t.Fatalf("expected call error")
	}
	if _, err := BalanceOf(ctx, &stubCaller{resp: []byte{1, 2}}, common.Address{}, common.Address{}, nil); err == nil {
		t.Fatalf("expected unpack error")
	}
}

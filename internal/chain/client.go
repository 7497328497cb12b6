package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is a read-only RPC connection. The chain id is read once at dial
// time so every log line can carry it.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
}

// NewClient dials rpcURL and reads the chain id.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	c := &Client{rpc: rc, eth: ethclient.NewClient(rc)}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	c.chainID = id
	return c, nil
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// LatestBlockNumber returns the head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// CallContract performs an eth_call. A nil blockNumber reads the head.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// BlockArg maps a configured block to a call argument; zero means latest.
func BlockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLedger/internal/chain"
	"curveLedger/internal/model"
)

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Load returns the cached metadata of token, fetching it on a miss. A failed
// fetch is cached too, holding whatever fields were read, so it is not retried.
func (c *TokenMetaCache) Load(ctx context.Context, caller chain.ContractCaller, token common.Address, logger *zap.Logger) model.TokenMeta {
	if meta, ok := c.Get(token); ok {
		return meta
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil && logger != nil {
		logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	c.Set(token, meta)
	return meta
}

// viewCaller issues view calls against a single contract.
type viewCaller struct {
	caller chain.ContractCaller
	to     common.Address
	abi    abi.ABI
	block  *big.Int
}

func (v viewCaller) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := v.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &v.to, Data: data}, v.block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := v.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return values, nil
}

func (v viewCaller) address(ctx context.Context, method string) (common.Address, error) {
	values, err := v.call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	return addr, nil
}

func (v viewCaller) bigInt(ctx context.Context, method string) (*big.Int, error) {
	values, err := v.call(ctx, method)
	if err != nil {
		return nil, err
	}
	n, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return n, nil
}

// text reads a string field, falling back to the bytes32 encoding some
// older tokens use.
func (v viewCaller) text(ctx context.Context, method string, fallback abi.ABI) (string, error) {
	values, err := v.call(ctx, method)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	legacy := v
	legacy.abi = fallback
	values, legacyErr := legacy.call(ctx, method)
	if legacyErr != nil {
		if err == nil {
			err = legacyErr
		}
		return "", err
	}
	s, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%s: unsupported type %T", method, values[0])
	}
	return s, nil
}

// FetchPoolMeta loads the immutable fields of a V3 pool: tokens, fee and
// tick spacing.
func FetchPoolMeta(ctx context.Context, caller chain.ContractCaller, pool common.Address) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("contract caller is nil")
	}
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}
	v := viewCaller{caller: caller, to: pool, abi: parsed}

	token0, err := v.address(ctx, "token0")
	if err != nil {
		return model.PoolMeta{}, err
	}
	token1, err := v.address(ctx, "token1")
	if err != nil {
		return model.PoolMeta{}, err
	}
	fee, err := v.bigInt(ctx, "fee")
	if err != nil {
		return model.PoolMeta{}, err
	}
	spacing, err := v.bigInt(ctx, "tickSpacing")
	if err != nil {
		return model.PoolMeta{}, err
	}
	tickSpacing, err := int24FromBig(spacing)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}

	return model.PoolMeta{
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		Fee:         uint32(fee.Uint64()),
		TickSpacing: tickSpacing,
	}, nil
}

// FetchPoolOptionalMeta loads slot0 and liquidity at blockNumber, or at the
// latest block when blockNumber is zero. Failed calls leave the field empty.
func FetchPoolOptionalMeta(ctx context.Context, caller chain.ContractCaller, pool common.Address, blockNumber uint64, logger *zap.Logger) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("contract caller is nil")
	}
	parsed, err := PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := viewCaller{caller: caller, to: pool, abi: parsed}
	if blockNumber > 0 {
		v.block = new(big.Int).SetUint64(blockNumber)
	}

	meta := model.PoolMeta{}
	if liq, err := v.bigInt(ctx, "liquidity"); err == nil {
		meta.Liquidity = liq.String()
	} else {
		logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	values, err := v.call(ctx, "slot0")
	if err != nil || len(values) < 2 {
		logger.Debug("slot0 call failed", zap.String("pool", pool.Hex()), zap.Error(err))
		return meta, nil
	}
	sqrt, errSqrt := asBigInt(values[0])
	tickInt, errTick := asBigInt(values[1])
	if errSqrt != nil || errTick != nil {
		return meta, nil
	}
	if tick, err := int24FromBig(tickInt); err == nil {
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrt.String(), Tick: tick}
	}
	return meta, nil
}

// FetchTokenMeta loads decimals, symbol and name. Decimals are required;
// symbol and name are best effort.
func FetchTokenMeta(ctx context.Context, caller chain.ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}
	stringABI, err := erc20StringABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	v := viewCaller{caller: caller, to: token, abi: stringABI}

	values, err := v.call(ctx, "decimals")
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, err
	}

	for _, field := range []struct {
		method string
		dst    *string
	}{{"symbol", &meta.Symbol}, {"name", &meta.Name}} {
		s, err := v.text(ctx, field.method, bytes32ABI)
		if err != nil {
			if logger != nil {
				logger.Debug(field.method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
			}
			continue
		}
		*field.dst = s
	}
	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	if value.Cmp(minInt24) < 0 || value.Cmp(maxInt24) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}

var (
	minInt24 = big.NewInt(-1 << 23)
	maxInt24 = big.NewInt((1 << 23) - 1)
)

package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// lazyABI parses its JSON on first use.
type lazyABI struct {
	json   string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.parsed, l.err
}

func viewMethod(name, outputs string) string {
	return `{"inputs":[],"name":"` + name + `","outputs":[` + outputs + `],"stateMutability":"view","type":"function"}`
}

func abiJSON(methods ...string) string {
	return "[" + strings.Join(methods, ",") + "]"
}

var (
	// Uniswap V3 pool views read when importing a pool config.
	poolABI = &lazyABI{json: abiJSON(
		viewMethod("token0", `{"type":"address"}`),
		viewMethod("token1", `{"type":"address"}`),
		viewMethod("fee", `{"type":"uint24"}`),
		viewMethod("tickSpacing", `{"type":"int24"}`),
		viewMethod("liquidity", `{"type":"uint128"}`),
		viewMethod("slot0", `{"name":"sqrtPriceX96","type":"uint160"},`+
			`{"name":"tick","type":"int24"},`+
			`{"name":"observationIndex","type":"uint16"},`+
			`{"name":"observationCardinality","type":"uint16"},`+
			`{"name":"observationCardinalityNext","type":"uint16"},`+
			`{"name":"feeProtocol","type":"uint8"},`+
			`{"name":"unlocked","type":"bool"}`),
	)}

	erc20StringABI = &lazyABI{json: abiJSON(
		viewMethod("decimals", `{"type":"uint8"}`),
		viewMethod("symbol", `{"type":"string"}`),
		viewMethod("name", `{"type":"string"}`),
	)}

	// Older tokens (MKR and friends) return bytes32 for symbol and name.
	erc20Bytes32ABI = &lazyABI{json: abiJSON(
		viewMethod("decimals", `{"type":"uint8"}`),
		viewMethod("symbol", `{"type":"bytes32"}`),
		viewMethod("name", `{"type":"bytes32"}`),
	)}
)

// PoolABI returns the parsed view surface of a V3 pool.
func PoolABI() (abi.ABI, error) { return poolABI.get() }

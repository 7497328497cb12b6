package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"curveLedger/internal/errcode"
	"curveLedger/internal/ledger"
	"curveLedger/internal/model"
)

var ErrInvalidOperation = errcode.New(errcode.InvalidOperation, "replay: invalid operation")

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

func parseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %s: invalid address %q", ErrInvalidOperation, field, input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount parses a base-10 amount. Values at or above 2^256 are rejected.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", input, err)
	}
	return v, nil
}

func parseAmount(field, input string) (*uint256.Int, error) {
	v, err := ParseAmount(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOperation, field, err)
	}
	return v, nil
}

// parseOptional is parseAmount that maps an empty field to nil.
func parseOptional(field, input string) (*uint256.Int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	return parseAmount(field, input)
}

func parseRoute(rec *model.RouteRecord) (ledger.Route, error) {
	if rec == nil {
		return ledger.DirectRoute(), nil
	}
	switch strings.ToLower(rec.Kind) {
	case "", "direct":
		if len(rec.Path) > 0 {
			return ledger.Route{}, fmt.Errorf("%w: direct route with a path", ErrInvalidOperation)
		}
		return ledger.DirectRoute(), nil
	case "exchange":
		path := make([]common.Address, 0, len(rec.Path))
		for _, hop := range rec.Path {
			addr, err := parseAddress("route.path", hop)
			if err != nil {
				return ledger.Route{}, err
			}
			path = append(path, addr)
		}
		return ledger.ExchangeRoute(path...), nil
	default:
		return ledger.Route{}, fmt.Errorf("%w: unknown route kind %q", ErrInvalidOperation, rec.Kind)
	}
}

func outputSpec(op model.OperationRecord) (ledger.OutputSpec, error) {
	route, err := parseRoute(op.Route)
	if err != nil {
		return ledger.OutputSpec{}, err
	}
	minOut, err := parseOptional("min_out", op.MinOut)
	if err != nil {
		return ledger.OutputSpec{}, err
	}
	return ledger.OutputSpec{Route: route, MinOut: minOut}, nil
}

func inputSpec(op model.OperationRecord) (ledger.InputSpec, error) {
	route, err := parseRoute(op.Route)
	if err != nil {
		return ledger.InputSpec{}, err
	}
	return ledger.InputSpec{Route: route}, nil
}

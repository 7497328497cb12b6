package errcode

import "errors"

// Code is a stable identifier for an error condition. Tooling matches on the
// code rather than on the message text.
type Code string

const (
	OK      Code = "OK"
	Unknown Code = "UNKNOWN"

	Unauthorized           Code = "UNAUTHORIZED"
	ZeroAmount             Code = "ZERO_AMOUNT"
	AssetMismatch          Code = "ASSET_MISMATCH"
	DuplicatePosition      Code = "DUPLICATE_POSITION"
	LiquidityGrossOverflow Code = "LIQUIDITY_GROSS_OVERFLOW"
	InvalidConfig          Code = "INVALID_CONFIG"
	InvalidPriceLimit      Code = "INVALID_PRICE_LIMIT"
	InvalidRoute           Code = "INVALID_ROUTE"
	TickOutOfRange         Code = "TICK_OUT_OF_RANGE"
	PriceOutOfRange        Code = "PRICE_OUT_OF_RANGE"
	MathOverflow           Code = "MATH_OVERFLOW"

	MaxPayExceeded   Code = "MAX_PAY_EXCEEDED"
	MinOutNotMet     Code = "MIN_OUT_NOT_MET"
	InsufficientRate Code = "INSUFFICIENT_RATE"

	InsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"

	PositionNotFound       Code = "POSITION_NOT_FOUND"
	InsufficientCollateral Code = "INSUFFICIENT_COLLATERAL"
	PoolLocked             Code = "POOL_LOCKED"
	Reentrant              Code = "REENTRANT"
	FeeRateTooHigh         Code = "FEE_RATE_TOO_HIGH"
	AssetNotRegistered     Code = "ASSET_NOT_REGISTERED"
	AssetAlreadyRegistered Code = "ASSET_ALREADY_REGISTERED"
	InsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	InsufficientAllowance  Code = "INSUFFICIENT_ALLOWANCE"
	NotMinter              Code = "NOT_MINTER"
	TokenNotFound          Code = "TOKEN_NOT_FOUND"
	PairNotFound           Code = "PAIR_NOT_FOUND"
	MarketUnavailable      Code = "MARKET_UNAVAILABLE"
	ConservationViolated   Code = "CONSERVATION_VIOLATED"
	InvalidOperation       Code = "INVALID_OPERATION"
)

// Error is a sentinel error carrying a Code.
type Error struct {
	code Code
	msg  string
}

// New returns a sentinel error. Compare with errors.Is.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable code of the error.
func (e *Error) Code() Code { return e.code }

// Of returns the code of the first coded error in err's chain. A nil error
// maps to OK and an uncoded error maps to Unknown.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return Unknown
}

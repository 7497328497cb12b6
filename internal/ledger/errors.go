package ledger

import "curveLedger/internal/errcode"

var (
	ErrUnauthorized           = errcode.New(errcode.Unauthorized, "ledger: caller is not owner nor approved")
	ErrNotAdmin               = errcode.New(errcode.Unauthorized, "ledger: caller is not the admin")
	ErrZeroAmount             = errcode.New(errcode.ZeroAmount, "ledger: zero amount")
	ErrAssetMismatch          = errcode.New(errcode.AssetMismatch, "ledger: positions hold different assets")
	ErrDuplicatePosition      = errcode.New(errcode.DuplicatePosition, "ledger: cannot merge a position with itself")
	ErrPositionNotFound       = errcode.New(errcode.PositionNotFound, "ledger: position not found")
	ErrInsufficientCollateral = errcode.New(errcode.InsufficientCollateral, "ledger: amount exceeds position collateral")
	ErrMaxPayExceeded         = errcode.New(errcode.MaxPayExceeded, "ledger: pay amount exceeds maximum")
	ErrMinOutNotMet           = errcode.New(errcode.MinOutNotMet, "ledger: output below minimum")
	ErrInsufficientRate       = errcode.New(errcode.InsufficientRate, "ledger: market proceeds do not cover cost basis")
	ErrInvalidRoute           = errcode.New(errcode.InvalidRoute, "ledger: invalid route")
	ErrReentrant              = errcode.New(errcode.Reentrant, "ledger: reentrant call")
	ErrFeeRateTooHigh         = errcode.New(errcode.FeeRateTooHigh, "ledger: fee rate above maximum")
	ErrAssetNotRegistered     = errcode.New(errcode.AssetNotRegistered, "ledger: asset not registered")
	ErrAssetRegistered        = errcode.New(errcode.AssetAlreadyRegistered, "ledger: asset already registered")
	ErrMarketUnavailable      = errcode.New(errcode.MarketUnavailable, "ledger: no market configured")
	ErrConservation           = errcode.New(errcode.ConservationViolated, "ledger: collateral does not match asset balance")
)

// CodeOf returns the stable code carried by err, errcode.OK for nil and
// errcode.Unknown for errors raised outside this module.
func CodeOf(err error) errcode.Code {
	return errcode.Of(err)
}

package model

import "time"

// AssetWindowMetrics stores aggregated ledger activity for an asset window.
type AssetWindowMetrics struct {
	Asset              string
	WindowSizeSecs     int64
	WindowStart        time.Time
	WindowEnd          time.Time
	OpCounts           map[string]uint64
	FailedCount        uint64
	Minted             string
	Burned             string
	Fees               string
	CollateralLocked   string
	CollateralReleased string
	NetCollateral      string
	FeeRatio           *string
}

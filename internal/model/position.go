package model

// PositionRecord is the persisted view of a live position.
type PositionRecord struct {
	TokenID uint64 `json:"token_id"`
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// CurveState is the persisted view of one direction of an asset's pool pair.
type CurveState struct {
	Asset        string `json:"asset"`
	Direction    string `json:"direction"`
	FeeTier      uint32 `json:"fee_tier"`
	TickSpacing  int32  `json:"tick_spacing"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
	Liquidity    string `json:"liquidity"`
	Balance0     string `json:"balance0"`
	Balance1     string `json:"balance1"`
	Swaps        uint64 `json:"swaps"`
}

package model

// Operation kinds shared by ledger events and replay records.
const (
	OpFund          = "fund"
	OpApprove       = "approve"
	OpOpen          = "open"
	OpGrow          = "grow"
	OpLeveragedOpen = "leveraged_open"
	OpLeveragedGrow = "leveraged_grow"
	OpRedeem        = "redeem"
	OpCash          = "cash"
	OpSplit         = "split"
	OpMerge         = "merge"
	OpTransfer      = "transfer"
	OpSetFeeRate    = "set_fee_rate"
	OpSetFeeSink    = "set_fee_sink"
	OpRegisterAsset = "register_asset"
)

// LedgerEvent records the outcome of one ledger operation. Amounts are
// decimal strings; CollateralDelta is signed.
type LedgerEvent struct {
	Seq             uint64 `json:"seq"`
	OpSeq           uint64 `json:"op_seq,omitempty"`
	Op              string `json:"op"`
	Code            string `json:"code"`
	Caller          string `json:"caller"`
	TokenID         uint64 `json:"token_id,omitempty"`
	RelatedTokenID  uint64 `json:"related_token_id,omitempty"`
	Asset           string `json:"asset,omitempty"`
	CollateralDelta string `json:"collateral_delta,omitempty"`
	PositionAmount  string `json:"position_amount,omitempty"`
	Gross           string `json:"gross,omitempty"`
	Fee             string `json:"fee,omitempty"`
	Minted          string `json:"minted,omitempty"`
	Burned          string `json:"burned,omitempty"`
	AmountIn        string `json:"amount_in,omitempty"`
	AmountOut       string `json:"amount_out,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

// Failed reports whether the event records a rejected operation.
func (e LedgerEvent) Failed() bool {
	return e.Code != "" && e.Code != "OK"
}

package model

// OperationRecord is one line of a replay input file. Amount fields are
// decimal strings and unused fields are left empty.
type OperationRecord struct {
	Seq       uint64       `json:"seq"`
	Kind      string       `json:"kind"`
	Caller    string       `json:"caller"`
	Asset     string       `json:"asset,omitempty"`
	Token     string       `json:"token,omitempty"`
	TokenID   uint64       `json:"token_id,omitempty"`
	OtherID   uint64       `json:"other_id,omitempty"`
	To        string       `json:"to,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	MaxPay    string       `json:"max_pay,omitempty"`
	MinOut    string       `json:"min_out,omitempty"`
	FeeRate   uint32       `json:"fee_rate,omitempty"`
	Route     *RouteRecord `json:"route,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// RouteRecord selects a ledger route. An empty kind or "direct" means Currency
// moves directly; "exchange" converts along Path.
type RouteRecord struct {
	Kind string   `json:"kind"`
	Path []string `json:"path,omitempty"`
}

package reporting

import "time"

// Report is the sale progress report built from the snapshot history and the action journal.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	SaleAddress string
	Signer      string // empty when the report covers pending actions only

	// Sale summary from the history
	Summary SaleSummary

	// Progress rows, ordered by observed_at
	Progress []ProgressRow

	// Actions, ordered by created_at
	Actions       []ActionRow
	ActionSummary []ActionSummaryRow // sorted by kind, status
}

// SaleSummary describes the latest observed state of the sale.
type SaleSummary struct {
	Admin          string
	TotalSupply    uint64
	Sold           uint64
	Remaining      uint64
	SoldPercent    float64
	Observations   int
	FirstObserved  int64 // Unix ms
	LastObserved   int64 // Unix ms
	SupplyIncrease uint64 // deposits seen between the first and last observation
}

// ProgressRow is one observation with the change since the previous one.
type ProgressRow struct {
	ObservedAt  int64 // Unix ms
	TotalSupply uint64
	Sold        uint64
	SoldDelta   uint64
	Remaining   uint64
}

// ActionRow is one journaled action.
type ActionRow struct {
	ActionID  string
	Kind      string
	Signer    string
	Amount    uint64
	Status    string
	Signature string
	Error     string
	CreatedAt int64 // Unix ms
}

// ActionSummaryRow counts actions and tokens per kind and status.
type ActionSummaryRow struct {
	Kind   string
	Status string
	Count  int
	Tokens uint64
}

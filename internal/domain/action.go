package domain

// ActionKind identifies a user-initiated action against the sale.
type ActionKind string

const (
	ActionPurchase       ActionKind = "PURCHASE"
	ActionInitialization ActionKind = "INITIALIZATION"
	ActionDeposit        ActionKind = "DEPOSIT"
)

// String returns the string representation of ActionKind.
func (k ActionKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k ActionKind) IsValid() bool {
	return k == ActionPurchase || k == ActionInitialization || k == ActionDeposit
}

// ActionStatus is the lifecycle state of a journaled action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "PENDING"
	ActionStatusConfirmed ActionStatus = "CONFIRMED"
	ActionStatusFailed    ActionStatus = "FAILED"
)

// ActionRecord is one submitted action in the action journal.
// Corresponds to the sale_actions table.
type ActionRecord struct {
	ActionID  string // deterministic hash, see idhash.ComputeActionID
	Kind      ActionKind
	Signer    string // base58
	Amount    uint64 // whole tokens
	Status    ActionStatus
	Signature *string // set once the transaction was sent
	Error     *string // submission error text, verbatim
	CreatedAt int64   // ms
	UpdatedAt int64   // ms
}

// SnapshotObservation is one reconciled view of the sale, appended on every refresh.
// Corresponds to the sale_snapshots table.
type SnapshotObservation struct {
	SaleAddress string
	Admin       string
	TotalSupply uint64
	Sold        uint64
	ObservedAt  int64 // ms
}

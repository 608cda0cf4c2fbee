// Package session is the single-writer controller for one sale session: it
// tracks the attached signer, their role and the sale, and runs sale actions.
package session

import (
	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/domain"
)

// Phase is the session's position in the attach/discover lifecycle.
type Phase string

const (
	PhaseDisconnected          Phase = "DISCONNECTED"
	PhaseDiscovering           Phase = "DISCOVERING"
	PhaseAdministratorNoSale   Phase = "ADMINISTRATOR_NO_SALE"
	PhaseAdministratorWithSale Phase = "ADMINISTRATOR_WITH_SALE"
	PhaseBuyer                 Phase = "BUYER"
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	return string(p)
}

// phaseFor maps a discovered role onto a phase.
func phaseFor(role domain.Role, snapshot *domain.SaleSnapshot) Phase {
	switch role {
	case domain.RoleAdministrator:
		if snapshot == nil {
			return PhaseAdministratorNoSale
		}
		return PhaseAdministratorWithSale
	case domain.RoleAdministratorCandidate:
		return PhaseAdministratorNoSale
	case domain.RoleBuyer:
		return PhaseBuyer
	default:
		return PhaseDiscovering
	}
}

// State is an immutable view of the session. The controller replaces it
// wholesale; readers receive copies.
type State struct {
	Phase    Phase
	Signer   solana.PublicKey // zero when detached
	Role     domain.Role
	Snapshot *domain.SaleSnapshot

	Holding       domain.Holding
	Purchased     uint64 // lifetime purchases recorded in the sale
	NativeBalance uint64 // lamports

	// Loading is true while an action is in flight.
	Loading     bool
	LastError   error
	LastReceipt *domain.Receipt
}

// Attached reports whether a signer is attached.
func (s State) Attached() bool {
	return !s.Signer.IsZero()
}

// CanBuy reports whether the buy action is offered.
func (s State) CanBuy() bool {
	return s.Snapshot != nil && (s.Phase == PhaseBuyer || s.Phase == PhaseAdministratorWithSale)
}

// CanInitialize reports whether sale initialization is offered.
func (s State) CanInitialize() bool {
	return s.Phase == PhaseAdministratorNoSale
}

// CanDeposit reports whether deposit is offered.
func (s State) CanDeposit() bool {
	return s.Phase == PhaseAdministratorWithSale
}

// CapHolding is the holding the per-user cap is checked against: the larger
// of the wallet's token balance and the purchases the sale has recorded.
func (s State) CapHolding() uint64 {
	if s.Purchased > s.Holding.Whole {
		return s.Purchased
	}
	return s.Holding.Whole
}

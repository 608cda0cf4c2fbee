package storage

import (
	"fmt"

	"solana-token-sale/internal/domain"
)

// ValidateAction checks an action before it is journaled.
func ValidateAction(a *domain.ActionRecord) error {
	if a == nil {
		return ErrInvalidInput
	}
	if a.ActionID == "" || a.Signer == "" {
		return fmt.Errorf("%w: action_id and signer are required", ErrInvalidInput)
	}
	if !a.Kind.IsValid() {
		return fmt.Errorf("%w: unknown action kind %q", ErrInvalidInput, a.Kind)
	}
	if a.Status != domain.ActionStatusPending {
		return fmt.Errorf("%w: new actions must be %s", ErrInvalidInput, domain.ActionStatusPending)
	}
	return nil
}

// ValidateFinish checks a terminal status.
func ValidateFinish(actionID string, status domain.ActionStatus) error {
	if actionID == "" {
		return fmt.Errorf("%w: action_id is required", ErrInvalidInput)
	}
	if status != domain.ActionStatusConfirmed && status != domain.ActionStatusFailed {
		return fmt.Errorf("%w: terminal status must be %s or %s, got %q",
			ErrInvalidInput, domain.ActionStatusConfirmed, domain.ActionStatusFailed, status)
	}
	return nil
}

// ValidateObservation checks a snapshot observation before it is stored.
func ValidateObservation(o *domain.SnapshotObservation) error {
	if o == nil || o.SaleAddress == "" || o.Admin == "" {
		return ErrInvalidInput
	}
	return nil
}

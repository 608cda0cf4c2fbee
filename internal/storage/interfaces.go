package storage

import (
	"context"

	"solana-token-sale/internal/domain"
)

// ActionJournal provides access to sale_actions storage.
// An action is written as PENDING before submission and finished exactly once.
type ActionJournal interface {
	// Begin records a new pending action. Returns ErrDuplicateKey if action_id exists.
	Begin(ctx context.Context, a *domain.ActionRecord) error

	// Finish moves a pending action to CONFIRMED or FAILED.
	// Returns ErrNotFound if action_id does not exist and ErrInvalidInput if it is not pending.
	Finish(ctx context.Context, actionID string, status domain.ActionStatus, signature, errText *string, updatedAt int64) error

	// GetByID retrieves an action by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, actionID string) (*domain.ActionRecord, error)

	// GetBySigner retrieves all actions of a signer, ordered by created_at ASC.
	GetBySigner(ctx context.Context, signer string) ([]*domain.ActionRecord, error)

	// GetPending retrieves all actions still PENDING, ordered by created_at ASC.
	GetPending(ctx context.Context) ([]*domain.ActionRecord, error)
}

// SnapshotHistoryStore provides access to sale_snapshots storage.
type SnapshotHistoryStore interface {
	// Append adds an observation. Returns ErrDuplicateKey if (sale_address, observed_at) exists.
	Append(ctx context.Context, o *domain.SnapshotObservation) error

	// GetBySale retrieves all observations of a sale, ordered by observed_at ASC.
	GetBySale(ctx context.Context, saleAddress string) ([]*domain.SnapshotObservation, error)

	// GetByTimeRange retrieves observations of a sale within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, saleAddress string, start, end int64) ([]*domain.SnapshotObservation, error)

	// Latest retrieves the most recent observation. Returns ErrNotFound if none.
	Latest(ctx context.Context, saleAddress string) (*domain.SnapshotObservation, error)
}

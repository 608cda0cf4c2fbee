package memory

import (
	"context"
	"sort"
	"sync"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/storage"
)

// ActionJournal is an in-memory implementation of storage.ActionJournal.
type ActionJournal struct {
	mu      sync.RWMutex
	actions map[string]*domain.ActionRecord // keyed by action_id
}

// NewActionJournal creates a new in-memory action journal.
func NewActionJournal() *ActionJournal {
	return &ActionJournal{
		actions: make(map[string]*domain.ActionRecord),
	}
}

// Compile-time interface check.
var _ storage.ActionJournal = (*ActionJournal)(nil)

// Begin records a new pending action.
func (j *ActionJournal) Begin(_ context.Context, a *domain.ActionRecord) error {
	if err := storage.ValidateAction(a); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.actions[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	j.actions[a.ActionID] = copyAction(a)
	return nil
}

// Finish moves a pending action to a terminal status.
func (j *ActionJournal) Finish(_ context.Context, actionID string, status domain.ActionStatus, signature, errText *string, updatedAt int64) error {
	if err := storage.ValidateFinish(actionID, status); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	a, ok := j.actions[actionID]
	if !ok {
		return storage.ErrNotFound
	}
	if a.Status != domain.ActionStatusPending {
		return storage.ErrInvalidInput
	}

	// Replace rather than mutate so earlier copies stay intact.
	next := copyAction(a)
	next.Status = status
	next.Signature = copyString(signature)
	next.Error = copyString(errText)
	next.UpdatedAt = updatedAt
	j.actions[actionID] = next
	return nil
}

// GetByID retrieves an action by its ID.
func (j *ActionJournal) GetByID(_ context.Context, actionID string) (*domain.ActionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	a, ok := j.actions[actionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyAction(a), nil
}

// GetBySigner retrieves all actions of a signer, ordered by created_at ASC.
func (j *ActionJournal) GetBySigner(_ context.Context, signer string) ([]*domain.ActionRecord, error) {
	return j.filter(func(a *domain.ActionRecord) bool { return a.Signer == signer }), nil
}

// GetPending retrieves all pending actions, ordered by created_at ASC.
func (j *ActionJournal) GetPending(_ context.Context) ([]*domain.ActionRecord, error) {
	return j.filter(func(a *domain.ActionRecord) bool { return a.Status == domain.ActionStatusPending }), nil
}

func (j *ActionJournal) filter(keep func(*domain.ActionRecord) bool) []*domain.ActionRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.ActionRecord
	for _, a := range j.actions {
		if keep(a) {
			result = append(result, copyAction(a))
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt != result[k].CreatedAt {
			return result[i].CreatedAt < result[k].CreatedAt
		}
		return result[i].ActionID < result[k].ActionID
	})
	return result
}

func copyAction(a *domain.ActionRecord) *domain.ActionRecord {
	cp := *a
	cp.Signature = copyString(a.Signature)
	cp.Error = copyString(a.Error)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

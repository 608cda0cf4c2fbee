package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/storage"
)

// SnapshotHistoryStore is an in-memory implementation of storage.SnapshotHistoryStore.
type SnapshotHistoryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SnapshotObservation // keyed by (sale_address, observed_at)
}

// NewSnapshotHistoryStore creates a new in-memory snapshot history store.
func NewSnapshotHistoryStore() *SnapshotHistoryStore {
	return &SnapshotHistoryStore{
		data: make(map[string]*domain.SnapshotObservation),
	}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

func observationKey(saleAddress string, observedAt int64) string {
	return fmt.Sprintf("%s|%d", saleAddress, observedAt)
}

// Append adds an observation.
func (s *SnapshotHistoryStore) Append(_ context.Context, o *domain.SnapshotObservation) error {
	if err := storage.ValidateObservation(o); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := observationKey(o.SaleAddress, o.ObservedAt)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *o
	s.data[key] = &cp
	return nil
}

// GetBySale retrieves all observations of a sale, ordered by observed_at ASC.
func (s *SnapshotHistoryStore) GetBySale(_ context.Context, saleAddress string) ([]*domain.SnapshotObservation, error) {
	return s.collect(saleAddress, func(int64) bool { return true }), nil
}

// GetByTimeRange retrieves observations within [start, end] (inclusive).
func (s *SnapshotHistoryStore) GetByTimeRange(_ context.Context, saleAddress string, start, end int64) ([]*domain.SnapshotObservation, error) {
	return s.collect(saleAddress, func(t int64) bool { return t >= start && t <= end }), nil
}

// Latest retrieves the most recent observation.
func (s *SnapshotHistoryStore) Latest(_ context.Context, saleAddress string) (*domain.SnapshotObservation, error) {
	all := s.collect(saleAddress, func(int64) bool { return true })
	if len(all) == 0 {
		return nil, storage.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (s *SnapshotHistoryStore) collect(saleAddress string, keep func(int64) bool) []*domain.SnapshotObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SnapshotObservation
	for _, o := range s.data {
		if o.SaleAddress == saleAddress && keep(o.ObservedAt) {
			cp := *o
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/storage"
)

// SnapshotHistoryStore implements storage.SnapshotHistoryStore using ClickHouse.
type SnapshotHistoryStore struct {
	conn *Conn
}

// NewSnapshotHistoryStore creates a new SnapshotHistoryStore.
func NewSnapshotHistoryStore(conn *Conn) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)

// Append adds an observation. MergeTree does not enforce uniqueness,
// so (sale_address, observed_at) is checked before insert.
func (s *SnapshotHistoryStore) Append(ctx context.Context, o *domain.SnapshotObservation) (err error) {
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "append_snapshot", time.Since(start).Seconds(), err)
	}(time.Now())

	if err := storage.ValidateObservation(o); err != nil {
		return err
	}
	if o.ObservedAt < 0 {
		return fmt.Errorf("%w: negative observed_at", storage.ErrInvalidInput)
	}

	exists, err := s.exists(ctx, o.SaleAddress, o.ObservedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sale_snapshots (
			sale_address, admin, total_supply, sold, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(o.SaleAddress, o.Admin, o.TotalSupply, o.Sold, uint64(o.ObservedAt)); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySale retrieves all observations of a sale, ordered by observed_at ASC.
func (s *SnapshotHistoryStore) GetBySale(ctx context.Context, saleAddress string) ([]*domain.SnapshotObservation, error) {
	query := `
		SELECT sale_address, admin, total_supply, sold, observed_at
		FROM sale_snapshots
		WHERE sale_address = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, saleAddress)
	if err != nil {
		return nil, fmt.Errorf("query by sale: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetByTimeRange retrieves observations within [start, end] (inclusive).
func (s *SnapshotHistoryStore) GetByTimeRange(ctx context.Context, saleAddress string, start, end int64) ([]*domain.SnapshotObservation, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	query := `
		SELECT sale_address, admin, total_supply, sold, observed_at
		FROM sale_snapshots
		WHERE sale_address = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, saleAddress, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// Latest retrieves the most recent observation. Returns ErrNotFound if none.
func (s *SnapshotHistoryStore) Latest(ctx context.Context, saleAddress string) (*domain.SnapshotObservation, error) {
	query := `
		SELECT sale_address, admin, total_supply, sold, observed_at
		FROM sale_snapshots
		WHERE sale_address = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, saleAddress)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	observations, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, storage.ErrNotFound
	}
	return observations[0], nil
}

// exists checks if an observation with the given key exists.
func (s *SnapshotHistoryStore) exists(ctx context.Context, saleAddress string, observedAt int64) (bool, error) {
	query := `
		SELECT count(*) FROM sale_snapshots
		WHERE sale_address = ? AND observed_at = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, saleAddress, uint64(observedAt)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanObservations scans multiple rows.
func scanObservations(rows chRows) ([]*domain.SnapshotObservation, error) {
	var observations []*domain.SnapshotObservation

	for rows.Next() {
		var o domain.SnapshotObservation
		var observedAt uint64

		if err := rows.Scan(&o.SaleAddress, &o.Admin, &o.TotalSupply, &o.Sold, &observedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		o.ObservedAt = int64(observedAt)
		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return observations, nil
}

package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/storage"
)

func observation(sale string, sold uint64, observedAt int64) *domain.SnapshotObservation {
	return &domain.SnapshotObservation{
		SaleAddress: sale,
		Admin:       "AdminPubkey",
		TotalSupply: 2000,
		Sold:        sold,
		ObservedAt:  observedAt,
	}
}

func TestSnapshotHistoryStore_AppendAndGetBySale(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotHistoryStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, observation("SaleA", 20, 3000)))
	require.NoError(t, store.Append(ctx, observation("SaleA", 10, 1000)))
	require.NoError(t, store.Append(ctx, observation("SaleB", 5, 2000)))

	got, err := store.GetBySale(ctx, "SaleA")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].ObservedAt)
	assert.Equal(t, uint64(10), got[0].Sold)
	assert.Equal(t, int64(3000), got[1].ObservedAt)
	assert.Equal(t, uint64(2000), got[1].TotalSupply)
	assert.Equal(t, "AdminPubkey", got[1].Admin)
}

func TestSnapshotHistoryStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotHistoryStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, observation("SaleA", 10, 1000)))

	err := store.Append(ctx, observation("SaleA", 11, 1000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSnapshotHistoryStore_TimeRangeAndLatest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotHistoryStore(conn)
	ctx := context.Background()

	_, err := store.Latest(ctx, "SaleA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for i, ts := range []int64{1000, 2000, 3000, 4000} {
		require.NoError(t, store.Append(ctx, observation("SaleA", uint64(i*10), ts)))
	}

	ranged, err := store.GetByTimeRange(ctx, "SaleA", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, int64(2000), ranged[0].ObservedAt)
	assert.Equal(t, int64(3000), ranged[1].ObservedAt)

	latest, err := store.Latest(ctx, "SaleA")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), latest.ObservedAt)
	assert.Equal(t, uint64(30), latest.Sold)
}

func TestSnapshotHistoryStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotHistoryStore(conn)

	err := store.Append(context.Background(), &domain.SnapshotObservation{Admin: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

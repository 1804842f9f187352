package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

func TestPriceIntervalStore_Postgres(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceIntervalStore(pool)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	intervals := []*domain.PriceInterval{
		{SellerID: "b", ProductID: "p1", Price: 10, Start: t0, End: t0.Add(24 * time.Hour)},
		{SellerID: "a", ProductID: "p1", Price: 12, Start: t0, End: t0},
		{SellerID: "a", ProductID: "p1", Price: 11, Start: t0.Add(48 * time.Hour), End: t0.Add(72 * time.Hour)},
	}
	require.NoError(t, store.InsertBulk(ctx, intervals))

	got, err := store.GetByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].SellerID)
	assert.True(t, got[0].IsPoint())
	assert.Equal(t, "b", got[1].SellerID)
	assert.True(t, got[2].Start.Equal(t0.Add(48*time.Hour)))

	ranged, err := store.GetByTimeRange(ctx, t0.Add(time.Hour), t0.Add(100*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 11.0, ranged[0].Price)

	// Whole batch rolls back on duplicate
	err = store.InsertBulk(ctx, []*domain.PriceInterval{
		{SellerID: "c", ProductID: "p1", Price: 1, Start: t0, End: t0},
		{SellerID: "a", ProductID: "p1", Price: 1, Start: t0, End: t0},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.GetByProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

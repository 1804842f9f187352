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

func TestRecordSource_Postgres(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		CREATE TABLE sales (
			"Store" TEXT NOT NULL,
			"Date"  TIMESTAMPTZ NOT NULL,
			"Sales" DOUBLE PRECISION,
			"Items" INTEGER
		);
		INSERT INTO sales VALUES
			('s1', '2024-01-01T00:00:00Z', 10.5, 3),
			('s1', '2024-01-02T00:00:00Z', NULL, 4),
			('s2', '2024-01-01T00:00:00Z', 7, 1);
	`)
	require.NoError(t, err)

	src := NewRecordSource(pool)

	fields, err := src.Fields(ctx, "sales")
	require.NoError(t, err)
	require.Len(t, fields, 4)
	assert.Equal(t, domain.Field{Name: "Date", Type: domain.FieldDatetime}, fields[1])
	assert.Equal(t, domain.Field{Name: "Sales", Type: domain.FieldFloat, Nullable: true}, fields[2])

	got, err := src.Query(ctx, storage.Query{
		Collection: "sales",
		Filters:    []storage.Filter{{Field: "Store", Value: "s1"}},
		SortBy:     "Sales",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10.5, got[0]["Sales"])
	assert.Equal(t, 3.0, got[0]["Items"])
	assert.Nil(t, got[1]["Sales"])

	date, ok := got[0].Time("Date")
	require.True(t, ok)
	assert.True(t, date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = src.Query(ctx, storage.Query{Collection: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = src.Fields(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPriceIntervalStore_InsertAndGetByProduct(t *testing.T) {
	store := NewPriceIntervalStore()
	ctx := context.Background()

	intervals := []*domain.PriceInterval{
		{SellerID: "b", ProductID: "p1", Price: 10, Start: t0, End: t0.Add(24 * time.Hour)},
		{SellerID: "a", ProductID: "p1", Price: 12, Start: t0, End: t0.Add(48 * time.Hour)},
		{SellerID: "a", ProductID: "p2", Price: 5, Start: t0.Add(-time.Hour), End: t0},
	}
	if err := store.InsertBulk(ctx, intervals); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByProduct failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 intervals, got %d", len(got))
	}
	if got[0].SellerID != "a" || got[1].SellerID != "b" {
		t.Errorf("Expected seller order a, b; got %s, %s", got[0].SellerID, got[1].SellerID)
	}

	// Copies are returned
	got[0].Price = 999
	again, _ := store.GetByProduct(ctx, "p1")
	if again[0].Price != 12 {
		t.Errorf("Store returned aliased interval")
	}
}

func TestPriceIntervalStore_DuplicateKey(t *testing.T) {
	store := NewPriceIntervalStore()
	ctx := context.Background()

	iv := &domain.PriceInterval{SellerID: "a", ProductID: "p1", Price: 10, Start: t0, End: t0}
	if err := store.InsertBulk(ctx, []*domain.PriceInterval{iv}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.PriceInterval{iv})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceIntervalStore_IntraBatchDuplicate(t *testing.T) {
	store := NewPriceIntervalStore()
	ctx := context.Background()

	batch := []*domain.PriceInterval{
		{SellerID: "a", ProductID: "p1", Price: 10, Start: t0, End: t0},
		{SellerID: "c", ProductID: "p1", Price: 10, Start: t0, End: t0},
		{SellerID: "a", ProductID: "p1", Price: 11, Start: t0, End: t0.Add(time.Hour)},
	}
	err := store.InsertBulk(ctx, batch)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Nothing from the failed batch is stored
	got, _ := store.GetByProduct(ctx, "p1")
	if len(got) != 0 {
		t.Errorf("Expected empty store after failed batch, got %d", len(got))
	}
}

func TestPriceIntervalStore_InvalidInput(t *testing.T) {
	store := NewPriceIntervalStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PriceInterval{
		{SellerID: "a", ProductID: "p1", Start: t0, End: t0.Add(-time.Hour)},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for end before start, got %v", err)
	}
}

func TestPriceIntervalStore_GetByTimeRange(t *testing.T) {
	store := NewPriceIntervalStore()
	ctx := context.Background()

	var batch []*domain.PriceInterval
	for i := 0; i < 5; i++ {
		start := t0.Add(time.Duration(i) * 24 * time.Hour)
		batch = append(batch, &domain.PriceInterval{SellerID: "a", ProductID: "p1", Price: float64(i), Start: start, End: start.Add(time.Hour)})
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, t0.Add(24*time.Hour), t0.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 intervals (inclusive bounds), got %d", len(got))
	}
	if got[0].Price != 1 || got[2].Price != 3 {
		t.Errorf("Unexpected range result: %v, %v", got[0].Price, got[2].Price)
	}
}

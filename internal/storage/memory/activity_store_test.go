package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

func TestActivityStore_InsertAndGet(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()

	points := []*domain.ActivityPoint{
		{SellerID: "s1", ProductID: "p1", Timestamp: t0.Add(2 * time.Hour), Value: 3},
		{SellerID: "s1", ProductID: "p1", Timestamp: t0, Value: 1},
		{SellerID: "s2", ProductID: "p1", Timestamp: t0, Value: 7},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetBySellerProduct(ctx, "s1", "p1")
	if err != nil {
		t.Fatalf("GetBySellerProduct failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(got))
	}
	if got[0].Value != 1 || got[1].Value != 3 {
		t.Errorf("Expected ascending timestamps, got values %v, %v", got[0].Value, got[1].Value)
	}

	ranged, err := store.GetByTimeRange(ctx, t0, t0)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ranged) != 2 || ranged[0].SellerID != "s1" || ranged[1].SellerID != "s2" {
		t.Errorf("Unexpected range result: %+v", ranged)
	}
}

func TestActivityStore_DuplicateKey(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()

	p := &domain.ActivityPoint{SellerID: "s1", ProductID: "p1", Timestamp: t0, Value: 1}
	if err := store.InsertBulk(ctx, []*domain.ActivityPoint{p}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.ActivityPoint{p}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.ActivityPoint{{ProductID: "p1"}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

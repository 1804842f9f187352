package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

func TestRunLogStore_GetByDay(t *testing.T) {
	store := NewRunLogStore()
	ctx := context.Background()

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	entries := []*domain.RunLogEntry{
		{ID: "r2", Pipeline: "sales", Type: domain.LogTypeError, CreatedAt: day.Add(23 * time.Hour)},
		{ID: "r1", Pipeline: "sales", Type: domain.LogTypeInfo, CreatedAt: day},
		{ID: "r3", Pipeline: "sales", Type: domain.LogTypeInfo, CreatedAt: day.Add(24 * time.Hour)},
		{ID: "r4", Pipeline: "clicks", Type: domain.LogTypeInfo, CreatedAt: day.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByDay(ctx, day.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("GetByDay failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	if got[0].ID != "r1" || got[1].ID != "r4" || got[2].ID != "r2" {
		t.Errorf("Unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}

	byPipeline, err := store.GetByPipeline(ctx, "sales")
	if err != nil {
		t.Fatalf("GetByPipeline failed: %v", err)
	}
	if len(byPipeline) != 3 {
		t.Errorf("Expected 3 entries for sales, got %d", len(byPipeline))
	}
}

func TestRunLogStore_Errors(t *testing.T) {
	store := NewRunLogStore()
	ctx := context.Background()

	e := &domain.RunLogEntry{ID: "r1", Pipeline: "p", CreatedAt: time.Now()}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.RunLogEntry{ID: "r2"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

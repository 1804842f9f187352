package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// PriceIntervalStore is an in-memory implementation of storage.PriceIntervalStore.
type PriceIntervalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceInterval // keyed by (seller_id, product_id, start)
}

// NewPriceIntervalStore creates a new in-memory price interval store.
func NewPriceIntervalStore() *PriceIntervalStore {
	return &PriceIntervalStore{
		data: make(map[string]*domain.PriceInterval),
	}
}

// intervalKey generates a unique key for a price interval.
func intervalKey(sellerID, productID string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", sellerID, productID, start.UnixNano())
}

// InsertBulk adds multiple intervals. Fails entire batch on duplicate.
func (s *PriceIntervalStore) InsertBulk(_ context.Context, intervals []*domain.PriceInterval) error {
	if len(intervals) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(intervals))

	// First pass: validate and check for duplicates (existing + intra-batch)
	for _, iv := range intervals {
		if iv == nil || iv.SellerID == "" || iv.ProductID == "" || iv.End.Before(iv.Start) {
			return storage.ErrInvalidInput
		}
		key := intervalKey(iv.SellerID, iv.ProductID, iv.Start)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, iv := range intervals {
		ivCopy := *iv
		s.data[intervalKey(iv.SellerID, iv.ProductID, iv.Start)] = &ivCopy
	}

	return nil
}

// GetByProduct retrieves all intervals of a product, ordered by start ASC, seller_id ASC.
func (s *PriceIntervalStore) GetByProduct(_ context.Context, productID string) ([]*domain.PriceInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceInterval
	for _, iv := range s.data {
		if iv.ProductID == productID {
			ivCopy := *iv
			result = append(result, &ivCopy)
		}
	}

	sortIntervals(result)
	return result, nil
}

// GetByTimeRange retrieves intervals starting within [start, end] (inclusive).
func (s *PriceIntervalStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.PriceInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceInterval
	for _, iv := range s.data {
		if !iv.Start.Before(start) && !iv.Start.After(end) {
			ivCopy := *iv
			result = append(result, &ivCopy)
		}
	}

	sortIntervals(result)
	return result, nil
}

// sortIntervals orders by start, then seller, then end so point intervals come first.
func sortIntervals(result []*domain.PriceInterval) {
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Start.Equal(result[j].Start) {
			return result[i].Start.Before(result[j].Start)
		}
		if result[i].SellerID != result[j].SellerID {
			return result[i].SellerID < result[j].SellerID
		}
		if result[i].ProductID != result[j].ProductID {
			return result[i].ProductID < result[j].ProductID
		}
		return result[i].End.Before(result[j].End)
	})
}

var _ storage.PriceIntervalStore = (*PriceIntervalStore)(nil)

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

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ActivityPoint // keyed by (seller_id, product_id, timestamp)
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		data: make(map[string]*domain.ActivityPoint),
	}
}

func activityKey(sellerID, productID string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", sellerID, productID, ts.UnixNano())
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *ActivityStore) InsertBulk(_ context.Context, points []*domain.ActivityPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.SellerID == "" || p.ProductID == "" {
			return storage.ErrInvalidInput
		}
		key := activityKey(p.SellerID, p.ProductID, p.Timestamp)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data[activityKey(p.SellerID, p.ProductID, p.Timestamp)] = &pointCopy
	}
	return nil
}

// GetBySellerProduct retrieves all points of a (seller, product) pair, ordered by timestamp ASC.
func (s *ActivityStore) GetBySellerProduct(_ context.Context, sellerID, productID string) ([]*domain.ActivityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityPoint
	for _, p := range s.data {
		if p.SellerID == sellerID && p.ProductID == productID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sortActivity(result)
	return result, nil
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
func (s *ActivityStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.ActivityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ActivityPoint
	for _, p := range s.data {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sortActivity(result)
	return result, nil
}

func sortActivity(result []*domain.ActivityPoint) {
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		if result[i].SellerID != result[j].SellerID {
			return result[i].SellerID < result[j].SellerID
		}
		return result[i].ProductID < result[j].ProductID
	})
}

var _ storage.ActivityStore = (*ActivityStore)(nil)

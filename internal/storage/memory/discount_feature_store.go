package memory

import (
	"context"
	"sort"
	"sync"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// DiscountFeatureStore is an in-memory implementation of storage.DiscountFeatureStore.
type DiscountFeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DiscountFeature // keyed by event_id
}

// NewDiscountFeatureStore creates a new in-memory discount feature store.
func NewDiscountFeatureStore() *DiscountFeatureStore {
	return &DiscountFeatureStore{
		data: make(map[string]*domain.DiscountFeature),
	}
}

// InsertBulk adds multiple rows. Fails entire batch on duplicate event_id.
func (s *DiscountFeatureStore) InsertBulk(_ context.Context, features []*domain.DiscountFeature) error {
	if len(features) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(features))
	for _, f := range features {
		if f == nil || f.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[f.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[f.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[f.EventID] = struct{}{}
	}

	for _, f := range features {
		s.data[f.EventID] = copyFeature(f)
	}
	return nil
}

// GetByProduct retrieves all rows of a product, ordered by event_date ASC.
func (s *DiscountFeatureStore) GetByProduct(_ context.Context, productID string) ([]*domain.DiscountFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DiscountFeature
	for _, f := range s.data {
		if f.ProductID == productID {
			result = append(result, copyFeature(f))
		}
	}
	sortFeatures(result)
	return result, nil
}

// GetAll retrieves all rows, ordered by event_date ASC, event_id ASC.
func (s *DiscountFeatureStore) GetAll(_ context.Context) ([]*domain.DiscountFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DiscountFeature, 0, len(s.data))
	for _, f := range s.data {
		result = append(result, copyFeature(f))
	}
	sortFeatures(result)
	return result, nil
}

func sortFeatures(result []*domain.DiscountFeature) {
	sort.Slice(result, func(i, j int) bool {
		if !result[i].EventDate.Equal(result[j].EventDate) {
			return result[i].EventDate.Before(result[j].EventDate)
		}
		return result[i].EventID < result[j].EventID
	})
}

// copyFeature deep-copies the nullable rank fields.
func copyFeature(f *domain.DiscountFeature) *domain.DiscountFeature {
	c := *f
	c.RankDisc = copyPtr(f.RankDisc)
	c.NPricesDisc = copyPtr(f.NPricesDisc)
	c.RankGain = copyPtr(f.RankGain)
	c.RankAvg = copyPtr(f.RankAvg)
	c.NPricesAvg = copyPtr(f.NPricesAvg)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ storage.DiscountFeatureStore = (*DiscountFeatureStore)(nil)

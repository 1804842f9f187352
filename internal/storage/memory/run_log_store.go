package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// RunLogStore is an in-memory implementation of storage.RunLogStore.
type RunLogStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunLogEntry // keyed by id
}

// NewRunLogStore creates a new in-memory run log store.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{
		data: make(map[string]*domain.RunLogEntry),
	}
}

// Insert adds a new entry. Returns ErrDuplicateKey if id exists.
func (s *RunLogStore) Insert(_ context.Context, e *domain.RunLogEntry) error {
	if e == nil || e.ID == "" || e.Pipeline == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	entryCopy := *e
	s.data[e.ID] = &entryCopy
	return nil
}

// GetByDay retrieves entries created on the UTC calendar day of day.
func (s *RunLogStore) GetByDay(_ context.Context, day time.Time) ([]*domain.RunLogEntry, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunLogEntry
	for _, e := range s.data {
		if !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}
	sortEntries(result)
	return result, nil
}

// GetByPipeline retrieves all entries of a pipeline, ordered by created_at ASC.
func (s *RunLogStore) GetByPipeline(_ context.Context, pipeline string) ([]*domain.RunLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunLogEntry
	for _, e := range s.data {
		if e.Pipeline == pipeline {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}
	sortEntries(result)
	return result, nil
}

func sortEntries(result []*domain.RunLogEntry) {
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
}

var _ storage.RunLogStore = (*RunLogStore)(nil)

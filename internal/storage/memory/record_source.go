package memory

import (
	"context"
	"fmt"
	"sync"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// RecordSource is an in-memory implementation of storage.RecordSource.
// It serves named collections loaded up front, typically in tests and tools.
type RecordSource struct {
	mu          sync.RWMutex
	collections map[string]*domain.Collection
}

// NewRecordSource creates an empty in-memory record source.
func NewRecordSource() *RecordSource {
	return &RecordSource{
		collections: make(map[string]*domain.Collection),
	}
}

// Load registers a collection. Fields are inferred from the records when empty.
// Loading an existing name replaces it.
func (s *RecordSource) Load(name string, fields []domain.Field, records []domain.Record) {
	if len(fields) == 0 {
		fields = domain.InferFields(records, recordKeys(records))
	}

	c := &domain.Collection{
		Name:    name,
		Fields:  append([]domain.Field(nil), fields...),
		Records: make([]domain.Record, len(records)),
	}
	for i, rec := range records {
		c.Records[i] = rec.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = c
}

// Query returns records of a collection matching all filters.
func (s *RecordSource) Query(_ context.Context, q storage.Query) ([]domain.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[q.Collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", q.Collection, storage.ErrNotFound)
	}
	return storage.Apply(c.Records, q), nil
}

// Fields returns the schema of a collection.
func (s *RecordSource) Fields(_ context.Context, collection string) ([]domain.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrNotFound)
	}
	return append([]domain.Field(nil), c.Fields...), nil
}

// recordKeys lists field names in first-seen order.
// Map iteration is random, so keys within one record are sorted.
func recordKeys(records []domain.Record) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, rec := range records {
		var fresh []string
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		sortStrings(fresh)
		keys = append(keys, fresh...)
	}
	return keys
}

var _ storage.RecordSource = (*RecordSource)(nil)

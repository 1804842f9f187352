package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// WorkingStore is an in-memory implementation of storage.WorkingStore.
// The orchestrator uses it for predict-active runs and tests use it in place of sqlite.
type WorkingStore struct {
	mu          sync.RWMutex
	collections map[string]*domain.Collection
}

// NewWorkingStore creates an empty in-memory working store.
func NewWorkingStore() *WorkingStore {
	return &WorkingStore{
		collections: make(map[string]*domain.Collection),
	}
}

// CreateCollection adds an empty collection. Returns ErrDuplicateKey if it exists.
func (s *WorkingStore) CreateCollection(_ context.Context, name string, fields []domain.Field) error {
	if name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return fmt.Errorf("collection %q: %w", name, storage.ErrDuplicateKey)
	}
	s.collections[name] = &domain.Collection{
		Name:   name,
		Fields: append([]domain.Field(nil), fields...),
	}
	return nil
}

// Insert appends copies of records to a collection.
func (s *WorkingStore) Insert(_ context.Context, collection string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q: %w", collection, storage.ErrNotFound)
	}
	for _, rec := range records {
		c.Records = append(c.Records, rec.Clone())
	}
	return nil
}

// Collection returns a copy of a collection with all records in insertion order.
func (s *WorkingStore) Collection(_ context.Context, name string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, storage.ErrNotFound)
	}

	out := &domain.Collection{
		Name:    c.Name,
		Fields:  append([]domain.Field(nil), c.Fields...),
		Records: make([]domain.Record, len(c.Records)),
	}
	for i, rec := range c.Records {
		out.Records[i] = rec.Clone()
	}
	return out, nil
}

// Collections lists collection names, sorted.
func (s *WorkingStore) Collections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sortStrings(names)
	return names, nil
}

// Query returns records of a collection matching all filters.
func (s *WorkingStore) Query(_ context.Context, q storage.Query) ([]domain.Record, error) {
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
func (s *WorkingStore) Fields(_ context.Context, collection string) ([]domain.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrNotFound)
	}
	return append([]domain.Field(nil), c.Fields...), nil
}

// Close drops all collections.
func (s *WorkingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string]*domain.Collection)
	return nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}

var _ storage.WorkingStore = (*WorkingStore)(nil)

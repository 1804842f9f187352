package observability

import (
	"context"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// InstrumentedSource wraps a record source and times its queries.
type InstrumentedSource struct {
	name    string
	source  storage.RecordSource
	metrics *Metrics
}

// InstrumentSource returns src wrapped with query metrics labelled name.
func InstrumentSource(name string, src storage.RecordSource, m *Metrics) *InstrumentedSource {
	return &InstrumentedSource{name: name, source: src, metrics: m}
}

// Query implements storage.RecordSource.
func (s *InstrumentedSource) Query(ctx context.Context, q storage.Query) ([]domain.Record, error) {
	start := time.Now()
	records, err := s.source.Query(ctx, q)
	s.metrics.RecordSourceQuery(s.name, time.Since(start), err)
	return records, err
}

// Fields implements storage.RecordSource.
func (s *InstrumentedSource) Fields(ctx context.Context, collection string) ([]domain.Field, error) {
	return s.source.Fields(ctx, collection)
}

var _ storage.RecordSource = (*InstrumentedSource)(nil)

package reporting

import (
	"context"
	"sort"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// Generator produces run-log reports.
type Generator struct {
	runLog storage.RunLogStore
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runLog storage.RunLogStore) *Generator {
	return &Generator{
		runLog: runLog,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for the UTC calendar day of day.
func (g *Generator) Generate(ctx context.Context, day time.Time) (*Report, error) {
	entries, err := g.runLog.GetByDay(ctx, day)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: g.now(),
		Day:         day.UTC().Truncate(24 * time.Hour),
		Pipelines:   summarize(entries),
		Entries:     entries,
	}, nil
}

// summarize groups entries per pipeline. Entries must be ordered by created_at ASC.
func summarize(entries []*domain.RunLogEntry) []PipelineSummary {
	byPipeline := make(map[string]*PipelineSummary)
	for _, e := range entries {
		s, ok := byPipeline[e.Pipeline]
		if !ok {
			s = &PipelineSummary{Pipeline: e.Pipeline}
			byPipeline[e.Pipeline] = s
		}
		s.Runs++
		switch e.Type {
		case domain.LogTypeError:
			s.Errors++
		case domain.LogTypeWarning:
			s.Warnings++
		}
		s.LastMode = e.Mode
		s.LastType = e.Type
		s.LastMessage = e.Message
		s.LastAt = e.CreatedAt
	}

	out := make([]PipelineSummary, 0, len(byPipeline))
	for _, s := range byPipeline {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pipeline < out[j].Pipeline
	})
	return out
}

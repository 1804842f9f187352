// Package reporting renders pipeline outputs and run-log reports.
package reporting

import (
	"time"

	"retail-signal-lab/internal/domain"
)

// Report summarises the run log of one day.
type Report struct {
	GeneratedAt time.Time
	Day         time.Time // UTC day covered
	Pipelines   []PipelineSummary
	Entries     []*domain.RunLogEntry // ordered by created_at ASC
}

// PipelineSummary aggregates the run log entries of one pipeline.
type PipelineSummary struct {
	Pipeline    string
	Runs        int // entries of any type
	Errors      int
	Warnings    int
	LastMode    string
	LastType    string
	LastMessage string
	LastAt      time.Time
}

// Failed reports whether the latest entry of the pipeline is an error.
func (s PipelineSummary) Failed() bool {
	return s.LastType == domain.LogTypeError
}

// TotalErrors counts error entries across all pipelines.
func (r *Report) TotalErrors() int {
	n := 0
	for _, p := range r.Pipelines {
		n += p.Errors
	}
	return n
}

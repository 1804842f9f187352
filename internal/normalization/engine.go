// Package normalization turns raw price readings and activity counts into
// the price_intervals and activity_series the analytics read.
package normalization

import (
	"context"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// NormalizationEngine defines the main normalization interface.
type NormalizationEngine interface {
	// Normalize folds readings into intervals and aggregated activity and stores both.
	Normalize(ctx context.Context, obs []*domain.PriceObservation, activity []*domain.ActivityPoint) (*Result, error)
}

// Runner implements NormalizationEngine.
type Runner struct {
	intervalStore storage.PriceIntervalStore
	activityStore storage.ActivityStore
	opts          IntervalOptions
}

// NewRunner creates a new normalization runner.
func NewRunner(intervalStore storage.PriceIntervalStore, activityStore storage.ActivityStore, opts IntervalOptions) *Runner {
	return &Runner{
		intervalStore: intervalStore,
		activityStore: activityStore,
		opts:          opts,
	}
}

// Result counts what a run stored.
type Result struct {
	Intervals int
	Activity  int
}

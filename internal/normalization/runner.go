package normalization

import (
	"context"
	"fmt"

	"retail-signal-lab/internal/domain"
)

// Normalize processes one batch of raw data.
// Steps:
//  1. Sort readings and activity by (seller, product, timestamp)
//  2. Fold readings into price intervals -> store
//  3. Aggregate activity per instant -> store
//
// Input slices are reordered in place.
func (r *Runner) Normalize(ctx context.Context, obs []*domain.PriceObservation, activity []*domain.ActivityPoint) (*Result, error) {
	SortObservations(obs)
	SortActivity(activity)

	intervals := BuildPriceIntervals(obs, r.opts)
	if len(intervals) > 0 {
		if err := r.intervalStore.InsertBulk(ctx, intervals); err != nil {
			return nil, fmt.Errorf("store price intervals: %w", err)
		}
	}

	points := AggregateActivity(activity)
	if len(points) > 0 && r.activityStore != nil {
		if err := r.activityStore.InsertBulk(ctx, points); err != nil {
			return nil, fmt.Errorf("store activity: %w", err)
		}
	}

	return &Result{Intervals: len(intervals), Activity: len(points)}, nil
}

package modules

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/discount"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/window"
)

type discountTransformParams struct {
	Product          string  `yaml:"product"`
	From             string  `yaml:"from"` // YYYY-MM-DD or RFC 3339, used without product
	To               string  `yaml:"to"`
	PastDays         int     `yaml:"past_days"`
	FutureDays       int     `yaml:"future_days"`
	OutlierThreshold float64 `yaml:"outlier_threshold"`
	BinSize          int     `yaml:"bin_size"`
	Relative         bool    `yaml:"relative"`
	Smoothing        float64 `yaml:"smoothing"`
	IncludeRank      bool    `yaml:"include_rank"`
	IncludeRankGain  bool    `yaml:"include_rank_gain"`
	FreqRank         float64 `yaml:"freq_rank"`
}

var (
	rangeStart = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DiscountTransformModule detects discounts in stored price intervals, analyses
// the activity around each one and stores the resulting feature rows.
// Events already stored are left untouched, so reruns only add new rows.
type DiscountTransformModule struct {
	res *Resources
}

// Transform implements Transformation.
func (m *DiscountTransformModule) Transform(ctx context.Context, spec config.ModuleSpec) error {
	if m.res.Intervals == nil || m.res.Activity == nil || m.res.Features == nil {
		return fmt.Errorf("%w: discount_features needs price interval, activity and discount feature stores", ErrNoStore)
	}
	var p discountTransformParams
	if err := spec.Decode(&p); err != nil {
		return err
	}
	from, to, err := p.timeRange()
	if err != nil {
		return err
	}
	logger := m.res.logger().With(zap.String("module", spec.Module))

	var stored []*domain.PriceInterval
	if p.Product != "" {
		stored, err = m.res.Intervals.GetByProduct(ctx, p.Product)
	} else {
		stored, err = m.res.Intervals.GetByTimeRange(ctx, from, to)
	}
	if err != nil {
		return fmt.Errorf("load price intervals: %w", err)
	}
	if len(stored) == 0 {
		logger.Info("no price intervals, nothing to do")
		return nil
	}
	intervals := make([]domain.PriceInterval, len(stored))
	for i, iv := range stored {
		intervals[i] = *iv
	}

	actFrom, actTo := activityRange(intervals, p.PastDays, p.FutureDays)
	points, err := m.res.Activity.GetByTimeRange(ctx, actFrom, actTo)
	if err != nil {
		return fmt.Errorf("load activity: %w", err)
	}
	activity := make([]domain.ActivityPoint, 0, len(points))
	for _, pt := range points {
		if p.Product == "" || pt.ProductID == p.Product {
			activity = append(activity, *pt)
		}
	}

	builder := discount.NewFeatureBuilder(discount.BuilderOptions{
		Detector: discount.Config{
			PastDays:         p.PastDays,
			FutureDays:       p.FutureDays,
			OutlierThreshold: p.OutlierThreshold,
		},
		Window: window.Config{
			BinSize:         p.BinSize,
			Relative:        p.Relative,
			Smoothing:       p.Smoothing,
			IncludeRank:     p.IncludeRank,
			IncludeRankGain: p.IncludeRankGain,
			FreqRank:        p.FreqRank,
		},
		Logger: logger,
	})
	result, err := builder.Build(ctx, intervals, activity)
	if err != nil {
		return err
	}

	warnings := make(map[string]int)
	for _, w := range result.Warnings {
		warnings[string(w.Kind)]++
	}
	m.res.Metrics.RecordDiscounts(len(result.Events), warnings)

	fresh, err := m.newFeatures(ctx, p.Product, result.Features)
	if err != nil {
		return err
	}
	if err := m.res.Features.InsertBulk(ctx, fresh); err != nil {
		return fmt.Errorf("store discount features: %w", err)
	}

	logger.Info("discount features stored",
		zap.Int("events", len(result.Events)),
		zap.Int("features", len(result.Features)),
		zap.Int("new", len(fresh)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return nil
}

// newFeatures drops features whose event is already stored.
func (m *DiscountTransformModule) newFeatures(ctx context.Context, product string, features []domain.DiscountFeature) ([]*domain.DiscountFeature, error) {
	var existing []*domain.DiscountFeature
	var err error
	if product != "" {
		existing, err = m.res.Features.GetByProduct(ctx, product)
	} else {
		existing, err = m.res.Features.GetAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load stored discount features: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[f.EventID] = true
	}

	var out []*domain.DiscountFeature
	for i := range features {
		f := &features[i]
		if seen[f.EventID] {
			continue
		}
		seen[f.EventID] = true
		out = append(out, f)
	}
	return out, nil
}

func (p discountTransformParams) timeRange() (time.Time, time.Time, error) {
	from, to := rangeStart, rangeEnd
	if p.From != "" {
		t, ok := filterValue(p.From).(time.Time)
		if !ok {
			return from, to, fmt.Errorf("%w: from %q is not a date", config.ErrInvalidConfig, p.From)
		}
		from = t
	}
	if p.To != "" {
		t, ok := filterValue(p.To).(time.Time)
		if !ok {
			return from, to, fmt.Errorf("%w: to %q is not a date", config.ErrInvalidConfig, p.To)
		}
		to = t
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: to before from", config.ErrInvalidConfig)
	}
	return from, to, nil
}

// activityRange covers every window the detector can open over intervals.
func activityRange(intervals []domain.PriceInterval, pastDays, futureDays int) (time.Time, time.Time) {
	lo, hi := intervals[0].Start, intervals[0].End
	for _, iv := range intervals {
		if iv.Start.Before(lo) {
			lo = iv.Start
		}
		if iv.End.After(hi) {
			hi = iv.End
		}
	}
	future := max(futureDays, discount.DefaultFutureDays)
	return lo.AddDate(0, 0, -pastDays), hi.AddDate(0, 0, future)
}

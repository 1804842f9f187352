package discount

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/window"
)

// BuilderOptions configures a FeatureBuilder.
type BuilderOptions struct {
	Detector Config
	Window   window.Config // Rank input is filled per event
	Logger   *zap.Logger
}

// BuildResult holds features and the detection output they were built from.
type BuildResult struct {
	Features []domain.DiscountFeature
	Events   []domain.DiscountEvent
	Warnings []DataIntegrityWarning
	Skipped  int // events without activity or with an unusable window
}

// FeatureBuilder turns discount events into window/rank feature rows.
type FeatureBuilder struct {
	detector *Detector
	window   window.Config
	logger   *zap.Logger
}

// NewFeatureBuilder creates a feature builder.
func NewFeatureBuilder(opts BuilderOptions) *FeatureBuilder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureBuilder{
		detector: NewDetector(opts.Detector),
		window:   opts.Window,
		logger:   logger,
	}
}

// Build detects discounts in intervals and analyses each event against the
// seller's activity for that product. Intervals must be sorted by Start ASC.
func (b *FeatureBuilder) Build(ctx context.Context, intervals []domain.PriceInterval, activity []domain.ActivityPoint) (*BuildResult, error) {
	scan, err := b.detector.Scan(intervals)
	if err != nil {
		return nil, err
	}

	for _, w := range scan.Warnings {
		b.logger.Warn("price reading rejected",
			zap.String("kind", string(w.Kind)),
			zap.String("seller_id", w.SellerID),
			zap.String("product_id", w.ProductID),
			zap.Float64("price_before", w.PriceBefore),
			zap.Float64("price_after", w.PriceAfter),
			zap.Time("timestamp", w.Timestamp),
		)
	}

	byProduct := groupByProduct(intervals)
	series := groupActivity(activity)

	result := &BuildResult{
		Events:   scan.Events,
		Warnings: scan.Warnings,
	}

	for _, ev := range scan.Events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points := series[pairKey{seller: ev.SellerID, product: ev.ProductID}]
		if len(points) == 0 {
			result.Skipped++
			continue
		}

		competitors, own := splitSeller(byProduct[ev.ProductID], ev.SellerID)
		before := ev.PriceBefore
		after := ev.PriceAfter
		cfg := b.window
		cfg.Rank = &window.RankInput{
			Competitors:     competitors,
			SellerIntervals: own,
			PriceBefore:     &before,
			PriceAfter:      &after,
		}

		res, err := window.Analyze(ev.Timestamp, window.At(ev.WindowStart), window.At(ev.WindowEnd), points, cfg)
		if err != nil {
			b.logger.Warn("discount window skipped",
				zap.String("event_id", ev.EventID),
				zap.Time("window_start", ev.WindowStart),
				zap.Time("window_end", ev.WindowEnd),
				zap.Error(err),
			)
			result.Skipped++
			continue
		}

		result.Features = append(result.Features, newFeature(ev, res))
	}

	b.logger.Info("discount features built",
		zap.Int("intervals", len(intervals)),
		zap.Int("events", len(scan.Events)),
		zap.Int("features", len(result.Features)),
		zap.Int("skipped", result.Skipped),
		zap.Int("warnings", len(scan.Warnings)),
	)
	return result, nil
}

func newFeature(ev domain.DiscountEvent, res *domain.WindowResult) domain.DiscountFeature {
	return domain.DiscountFeature{
		EventID:     ev.EventID,
		ProductID:   ev.ProductID,
		SellerID:    ev.SellerID,
		StartDate:   ev.WindowStart,
		EndDate:     ev.WindowEnd,
		EventDate:   ev.Timestamp,
		Price:       ev.PriceBefore,
		Discount:    ev.Discount,
		DiffAvg:     res.Diff.DiffAvg,
		LenDisc:     res.Diff.LenDisc,
		RankDisc:    res.Diff.RankDisc,
		NPricesDisc: res.Diff.NPricesDisc,
		RankGain:    res.Diff.RankGain,
		RankAvg:     res.Diff.RankAvg,
		NPricesAvg:  res.Diff.NPricesAvg,
	}
}

func groupByProduct(intervals []domain.PriceInterval) map[string][]domain.PriceInterval {
	out := make(map[string][]domain.PriceInterval)
	for _, iv := range intervals {
		out[iv.ProductID] = append(out[iv.ProductID], iv)
	}
	return out
}

// groupActivity splits activity per (seller, product), sorted by timestamp ASC.
func groupActivity(activity []domain.ActivityPoint) map[pairKey][]domain.TimeSeriesPoint {
	out := make(map[pairKey][]domain.TimeSeriesPoint)
	for i := range activity {
		a := &activity[i]
		key := pairKey{seller: a.SellerID, product: a.ProductID}
		out[key] = append(out[key], a.Point())
	}
	for _, points := range out {
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Timestamp.Before(points[j].Timestamp)
		})
	}
	return out
}

func splitSeller(intervals []domain.PriceInterval, sellerID string) (competitors, own []domain.PriceInterval) {
	for _, iv := range intervals {
		if iv.SellerID == sellerID {
			own = append(own, iv)
		} else {
			competitors = append(competitors, iv)
		}
	}
	return competitors, own
}

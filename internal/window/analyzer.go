// Package window computes before/after activity statistics around an event date.
package window

import (
	"fmt"
	"math"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/rank"
)

// DefaultBinSize is the bin width in hours used when Config.BinSize is zero.
const DefaultBinSize = domain.BinSizeDay

// Bound is either a day offset from the event date or an absolute timestamp.
type Bound struct {
	days     int
	at       time.Time
	absolute bool
}

// Days returns a bound n calendar days away from the event date.
func Days(n int) Bound {
	return Bound{days: n}
}

// At returns an absolute bound.
func At(t time.Time) Bound {
	return Bound{at: t, absolute: true}
}

func (b Bound) String() string {
	if b.absolute {
		return b.at.Format(time.RFC3339)
	}
	return fmt.Sprintf("%dd", b.days)
}

// RankInput carries the price intervals needed for rank analysis.
type RankInput struct {
	Competitors     []domain.PriceInterval // other sellers' intervals for the product
	SellerIntervals []domain.PriceInterval // analysed seller's own intervals
	PriceBefore     *float64               // resolved from SellerIntervals when nil
	PriceAfter      *float64               // resolved from SellerIntervals when nil
}

// Config controls binning and differencing.
type Config struct {
	BinSize         int     // bin width in hours, DefaultBinSize when 0
	Relative        bool    // relative instead of absolute differences
	Smoothing       float64 // added to both averages in relative mode
	IncludeRank     bool    // merge competitor rank fields into the diff
	IncludeRankGain bool    // also compute rank just before the event
	FreqRank        float64 // rank sampling step in hours, 1 when 0
	Rank            *RankInput
}

// Analyze splits points into the before side [past, eventDate] and the after side
// (eventDate, future], bins each side and compares them.
// Points must be sorted by timestamp ASC. Negative values are excluded.
func Analyze(eventDate time.Time, past, future Bound, points []domain.TimeSeriesPoint, cfg Config) (*domain.WindowResult, error) {
	start, end, err := resolveBounds(eventDate, past, future)
	if err != nil {
		return nil, err
	}
	if cfg.BinSize < 0 {
		return nil, ErrInvalidBinSize
	}
	binSize := cfg.BinSize
	if binSize == 0 {
		binSize = DefaultBinSize
	}
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Before(points[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: index %d", ErrUnsorted, i)
		}
	}

	// Partition and sum points sharing a timestamp
	var beforeSums, afterSums []domain.TimeSeriesPoint
	for _, p := range points {
		if !(p.Value >= 0) {
			continue
		}
		switch {
		case !p.Timestamp.After(eventDate):
			if !p.Timestamp.Before(start) {
				beforeSums = addPoint(beforeSums, p)
			}
		case !p.Timestamp.After(end):
			afterSums = addPoint(afterSums, p)
		}
	}

	width := time.Duration(binSize) * time.Hour
	result := &domain.WindowResult{
		Before: summarize(start, eventDate, aggregate(start, eventDate, beforeSums, width)),
		After:  summarize(eventDate, end, aggregate(eventDate, end, afterSums, width)),
	}

	before := &result.Before
	after := &result.After
	diff := &result.Diff
	if cfg.Relative {
		diff.DiffMin = (after.Min - before.Min) / before.Min
		diff.DiffMax = (after.Max - before.Max) / before.Max
		after.Avg += cfg.Smoothing
		before.Avg += cfg.Smoothing
		diff.DiffAvg = (after.Avg - before.Avg) / before.Avg
	} else {
		diff.DiffMin = after.Min - before.Min
		diff.DiffMax = after.Max - before.Max
		diff.DiffAvg = after.Avg - before.Avg
	}
	diff.LenDisc = len(after.Values)

	if cfg.IncludeRank {
		if cfg.Rank == nil {
			return nil, ErrMissingRankInput
		}
		summary, err := rank.CalculateAvgRank(
			cfg.Rank.Competitors,
			cfg.Rank.SellerIntervals,
			after.Start, after.End,
			rank.Params{FreqRank: cfg.FreqRank, IncludeRankGain: cfg.IncludeRankGain},
			cfg.Rank.PriceBefore, cfg.Rank.PriceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("rank analysis: %w", err)
		}
		summary.Apply(diff)
	}

	return result, nil
}

// resolveBounds converts bounds into absolute window start and end.
func resolveBounds(eventDate time.Time, past, future Bound) (time.Time, time.Time, error) {
	if past.absolute != future.absolute {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: past=%s future=%s", ErrMixedBounds, past, future)
	}

	if !past.absolute {
		if past.days < 0 || future.days < 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: negative day offset", ErrInvalidRange)
		}
		return eventDate.AddDate(0, 0, -past.days), eventDate.AddDate(0, 0, future.days), nil
	}

	if !past.at.Before(eventDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s not before event %s",
			ErrInvalidRange, past.at.Format(time.RFC3339), eventDate.Format(time.RFC3339))
	}
	if !future.at.After(eventDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s not after event %s",
			ErrInvalidRange, future.at.Format(time.RFC3339), eventDate.Format(time.RFC3339))
	}
	return past.at, future.at, nil
}

// addPoint appends p, summing into the last point if timestamps match.
// Input is sorted, so equal timestamps are adjacent.
func addPoint(sums []domain.TimeSeriesPoint, p domain.TimeSeriesPoint) []domain.TimeSeriesPoint {
	if n := len(sums); n > 0 && sums[n-1].Timestamp.Equal(p.Timestamp) {
		sums[n-1].Value += p.Value
		return sums
	}
	return append(sums, domain.TimeSeriesPoint{Timestamp: p.Timestamp, Value: p.Value})
}

// aggregate bins sums into fixed-width bins starting at from.
// A bin starting at s takes every not yet consumed point with ts <= s+width,
// so a point on a bin edge lands in the earlier bin. Points left over after
// the last bin but still <= to are added to the last bin.
func aggregate(from, to time.Time, sums []domain.TimeSeriesPoint, width time.Duration) []domain.TimeSeriesPoint {
	var bins []domain.TimeSeriesPoint
	i := 0
	for binStart := from; binStart.Before(to); binStart = binStart.Add(width) {
		binEnd := binStart.Add(width)
		bin := domain.TimeSeriesPoint{Timestamp: binStart}
		for ; i < len(sums) && !sums[i].Timestamp.After(binEnd); i++ {
			bin.Value += sums[i].Value
		}
		bins = append(bins, bin)
	}

	if len(bins) > 0 {
		for ; i < len(sums) && !sums[i].Timestamp.After(to); i++ {
			bins[len(bins)-1].Value += sums[i].Value
		}
	}
	return bins
}

// summarize computes avg/min/max/stddev over bin values.
// Variance divides by n-1 when n > 1, else by n.
func summarize(start, end time.Time, bins []domain.TimeSeriesPoint) domain.WindowSide {
	side := domain.WindowSide{
		Start:  start,
		End:    end,
		Min:    math.NaN(),
		Max:    math.NaN(),
		Values: bins,
	}
	n := len(bins)
	if n == 0 {
		return side
	}

	sum := 0.0
	side.Min = bins[0].Value
	side.Max = bins[0].Value
	for _, b := range bins {
		sum += b.Value
		side.Min = math.Min(side.Min, b.Value)
		side.Max = math.Max(side.Max, b.Value)
	}
	side.Avg = sum / float64(n)

	sumSq := 0.0
	for _, b := range bins {
		d := b.Value - side.Avg
		sumSq += d * d
	}
	denom := n
	if n > 1 {
		denom = n - 1
	}
	side.Stddev = math.Sqrt(sumSq / float64(denom))
	return side
}

package domain

import "time"

// TimeSeriesPoint is one observation of an activity series (clicks, sales, pageviews).
// Series passed to analysis functions must be sorted by Timestamp ASC.
type TimeSeriesPoint struct {
	Timestamp time.Time // observation time
	Value     float64   // observed value, negative values are invalid readings
}

// ActivityPoint is a TimeSeriesPoint attributed to a (seller, product) pair.
// Corresponds to activity_series table in ClickHouse.
type ActivityPoint struct {
	SellerID  string    // seller the activity was redirected to
	ProductID string    // product the activity refers to
	Timestamp time.Time // observation time
	Value     float64   // clicks / sold units / pageviews
}

// Point drops the seller/product attribution.
func (a *ActivityPoint) Point() TimeSeriesPoint {
	return TimeSeriesPoint{Timestamp: a.Timestamp, Value: a.Value}
}

// PriceObservation is a raw price reading before it is folded into intervals.
type PriceObservation struct {
	SellerID  string
	ProductID string
	Price     float64
	Timestamp time.Time
}

// PriceInterval is the price a seller held for a product over [Start, End).
// Intervals of one (seller, product) pair never overlap. Start == End marks
// an instantaneous online price change.
// Corresponds to price_intervals table.
type PriceInterval struct {
	SellerID  string    // seller identifier
	ProductID string    // product identifier
	Price     float64   // price held during the interval
	Start     time.Time // inclusive
	End       time.Time // exclusive, equal to Start for point intervals
}

// IsPoint reports whether the interval is a zero-length price change.
func (p *PriceInterval) IsPoint() bool {
	return p.Start.Equal(p.End)
}

// Contains reports whether ts falls inside the interval.
// A point interval contains only its own instant.
func (p *PriceInterval) Contains(ts time.Time) bool {
	if p.IsPoint() {
		return ts.Equal(p.Start)
	}
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// Supported bin sizes for window aggregation (in hours)
const (
	BinSizeHour = 1
	BinSizeDay  = 24
	BinSizeWeek = 24 * 7
)

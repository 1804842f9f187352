package normalization

import (
	"time"

	"retail-signal-lab/internal/domain"
)

// IntervalOptions controls how readings are folded into intervals.
type IntervalOptions struct {
	// Horizon closes the last interval of every pair. A zero or earlier horizon
	// leaves the last interval as a point at its start.
	Horizon time.Time

	// MaxGap closes an interval at its last reading when the next reading is
	// further away, marking the seller offline in between. Zero disables it.
	MaxGap time.Duration
}

// BuildPriceIntervals folds readings into contiguous price intervals.
// Readings must be pre-sorted with SortObservations.
//
// Folding rules per (seller_id, product_id):
//   - same timestamp: LAST(price) by arrival order
//   - consecutive equal prices extend the current interval
//   - a price change ends the current interval at the change instant
func BuildPriceIntervals(obs []*domain.PriceObservation, opts IntervalOptions) []*domain.PriceInterval {
	if len(obs) == 0 {
		return nil
	}

	var result []*domain.PriceInterval
	var current *domain.PriceInterval
	var lastSeen time.Time

	closeAt := func(end time.Time) {
		if end.Before(current.Start) {
			end = current.Start
		}
		current.End = end
		result = append(result, current)
		current = nil
	}

	for i, o := range obs {
		if current != nil && (current.SellerID != o.SellerID || current.ProductID != o.ProductID) {
			closeAt(opts.Horizon)
		}

		// Collapse same-instant readings: only the last one counts
		if i+1 < len(obs) && sameInstant(o, obs[i+1]) {
			continue
		}

		switch {
		case current == nil:
			current = newInterval(o)
		case opts.MaxGap > 0 && o.Timestamp.Sub(lastSeen) > opts.MaxGap:
			closeAt(lastSeen)
			current = newInterval(o)
		case o.Price != current.Price:
			closeAt(o.Timestamp)
			current = newInterval(o)
		}
		lastSeen = o.Timestamp
	}

	if current != nil {
		closeAt(opts.Horizon)
	}
	return result
}

func newInterval(o *domain.PriceObservation) *domain.PriceInterval {
	return &domain.PriceInterval{
		SellerID:  o.SellerID,
		ProductID: o.ProductID,
		Price:     o.Price,
		Start:     o.Timestamp,
	}
}

func sameInstant(a, b *domain.PriceObservation) bool {
	return a.SellerID == b.SellerID && a.ProductID == b.ProductID && a.Timestamp.Equal(b.Timestamp)
}

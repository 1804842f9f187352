// Package rank computes the competitive rank of a price among other sellers over time.
package rank

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"retail-signal-lab/internal/domain"
)

// Errors returned by the tracker.
var (
	ErrNonMonotonic  = errors.New("rank queries must use non-decreasing timestamps")
	ErrNoSellerPrice = errors.New("seller has no price at timestamp")
	ErrInvalidStep   = errors.New("rank step must be positive")
)

// Result is the rank of a price at one instant.
type Result struct {
	Rank int // 1 = cheapest
	N    int // competitors with a known price
}

// Tracker holds per-seller FIFO queues of price intervals.
// Queries must come in non-decreasing time order; queues never rewind.
type Tracker struct {
	queues  map[string][]domain.PriceInterval
	sellers []string
	last    time.Time
	queried bool
}

// NewTracker builds a tracker for [start, end] from competitor intervals.
// The analysed seller must already be excluded from competitors.
// Intervals starting after end are ignored. The interval containing start
// replaces everything queued before it for that seller.
func NewTracker(competitors []domain.PriceInterval, start, end time.Time) *Tracker {
	sorted := make([]domain.PriceInterval, len(competitors))
	copy(sorted, competitors)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].End.Equal(sorted[j].End) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	t := &Tracker{queues: make(map[string][]domain.PriceInterval)}
	for _, iv := range sorted {
		switch {
		case !iv.Start.After(start) && start.Before(iv.End):
			t.queues[iv.SellerID] = []domain.PriceInterval{iv}
		case !iv.Start.After(end):
			t.queues[iv.SellerID] = append(t.queues[iv.SellerID], iv)
		}
	}

	t.sellers = make([]string, 0, len(t.queues))
	for seller := range t.queues {
		t.sellers = append(t.sellers, seller)
	}
	sort.Strings(t.sellers)
	return t
}

// Get returns the rank of price at ts among competitors.
// A seller's head interval is dropped once it has ended and the next interval
// has started; the last known price is carried forward past its end.
// Sellers whose first interval starts after ts are not counted.
func (t *Tracker) Get(price float64, ts time.Time) (Result, error) {
	if t.queried && ts.Before(t.last) {
		return Result{}, fmt.Errorf("%w: %s before %s", ErrNonMonotonic,
			ts.Format(time.RFC3339), t.last.Format(time.RFC3339))
	}
	t.last = ts
	t.queried = true

	res := Result{Rank: 1}
	for _, seller := range t.sellers {
		q := t.queues[seller]
		for len(q) > 1 && !q[0].End.After(ts) && !q[1].Start.After(ts) {
			q = q[1:]
		}
		t.queues[seller] = q

		head := q[0]
		if head.Start.After(ts) {
			continue
		}
		res.N++
		if head.Price < price {
			res.Rank++
		}
	}
	return res, nil
}


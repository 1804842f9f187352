package rank

import (
	"errors"
	"fmt"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/lookup"
)

// gainOffset is how long before the event the previous rank is sampled.
const gainOffset = time.Minute

// Params controls averaged rank computation.
type Params struct {
	FreqRank        float64 // sampling step in hours, 1 when 0
	IncludeRankGain bool
}

// CalculateAvgRank computes rank at start, the optional rank gain and the
// rank averaged over [start, end] sampled every FreqRank hours.
// Nil prices are resolved from sellerIntervals at start (after) and one
// minute before start (before), carrying the last price across gaps.
func CalculateAvgRank(
	competitors, sellerIntervals []domain.PriceInterval,
	start, end time.Time,
	params Params,
	priceBefore, priceAfter *float64,
) (*domain.RankSummary, error) {
	freq := params.FreqRank
	if freq == 0 {
		freq = 1
	}
	step := time.Duration(freq * float64(time.Hour))
	if step <= 0 {
		return nil, fmt.Errorf("%w: %v hours", ErrInvalidStep, params.FreqRank)
	}

	price, err := resolvePrice(priceAfter, start, sellerIntervals)
	if err != nil {
		return nil, err
	}

	tracker := NewTracker(competitors, start, end)
	r, err := tracker.Get(price, start)
	if err != nil {
		return nil, err
	}

	summary := &domain.RankSummary{
		RankDisc:    r.Rank,
		NPricesDisc: r.N,
	}

	if params.IncludeRankGain {
		prevTs := start.Add(-gainOffset)
		before, err := resolvePrice(priceBefore, prevTs, sellerIntervals)
		switch {
		case err == nil:
			prev, err := NewTracker(competitors, prevTs, start).Get(before, prevTs)
			if err != nil {
				return nil, err
			}
			gain := prev.Rank - r.Rank
			summary.RankGain = &gain
		case errors.Is(err, ErrNoSellerPrice):
			// No price before the event: gain stays unset
		default:
			return nil, err
		}
	}

	ranks := r.Rank
	nPrices := r.N
	n := 1
	for ts := start.Add(step); !ts.After(end); ts = ts.Add(step) {
		r, err := tracker.Get(price, ts)
		if err != nil {
			return nil, err
		}
		ranks += r.Rank
		nPrices += r.N
		n++
	}

	summary.RankAvg = float64(ranks) / float64(n)
	summary.NPricesAvg = float64(nPrices) / float64(n)
	return summary, nil
}

func resolvePrice(price *float64, ts time.Time, sellerIntervals []domain.PriceInterval) (float64, error) {
	if price != nil {
		return *price, nil
	}
	if len(sellerIntervals) == 0 {
		return 0, fmt.Errorf("%w: no seller intervals", ErrNoSellerPrice)
	}
	seller := sellerIntervals[0].SellerID
	p, err := lookup.PriceAt(ts, seller, sellerIntervals)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, lookup.ErrNoPriceAtTime) {
		return 0, fmt.Errorf("%w: %s: %v", ErrNoSellerPrice, ts.Format(time.RFC3339), err)
	}

	// In a gap between intervals the last known price still holds
	last, err := lookup.LastPriceAt(ts, seller, sellerIntervals)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNoSellerPrice, ts.Format(time.RFC3339), err)
	}
	if last == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoSellerPrice, ts.Format(time.RFC3339))
	}
	return *last, nil
}

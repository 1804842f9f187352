package lookup

import (
	"errors"
	"time"

	"retail-signal-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData   = errors.New("no price data available")
	ErrNoPriceAtTime = errors.New("no price interval covers timestamp")
)

// PriceAt returns the price of the seller's interval containing ts.
// A point interval matches only its own instant.
// Returns ErrNoPriceData if intervals is empty, ErrNoPriceAtTime if none covers ts.
func PriceAt(ts time.Time, sellerID string, intervals []domain.PriceInterval) (float64, error) {
	if len(intervals) == 0 {
		return 0, ErrNoPriceData
	}

	for i := range intervals {
		iv := &intervals[i]
		if iv.SellerID != sellerID {
			continue
		}
		if iv.Contains(ts) {
			return iv.Price, nil
		}
	}

	return 0, ErrNoPriceAtTime
}

// LastPriceAt returns the price of the latest interval starting at or before ts.
// Unlike PriceAt it carries the last known price past the interval end.
// Returns (nil, nil) if the seller had no price yet (valid case).
func LastPriceAt(ts time.Time, sellerID string, intervals []domain.PriceInterval) (*float64, error) {
	if len(intervals) == 0 {
		return nil, ErrNoPriceData
	}

	var found *domain.PriceInterval
	for i := range intervals {
		iv := &intervals[i]
		if iv.SellerID != sellerID || iv.Start.After(ts) {
			continue
		}
		if found == nil || iv.Start.After(found.Start) {
			found = iv
		}
	}
	if found == nil {
		return nil, nil
	}
	price := found.Price
	return &price, nil
}

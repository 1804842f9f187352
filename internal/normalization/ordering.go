package normalization

import (
	"sort"
	"strings"

	"retail-signal-lab/internal/domain"
)

// SortObservations orders readings by (seller_id ASC, product_id ASC, timestamp ASC).
// The sort is stable so same-instant readings keep their arrival order.
func SortObservations(obs []*domain.PriceObservation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return compareObservations(obs[i], obs[j]) < 0
	})
}

// SortActivity orders points by (seller_id ASC, product_id ASC, timestamp ASC).
func SortActivity(points []*domain.ActivityPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if c := compareKey(a.SellerID, a.ProductID, b.SellerID, b.ProductID); c != 0 {
			return c < 0
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// SortIntervals orders intervals by (start ASC, seller_id ASC, product_id ASC, end ASC),
// the order the discount detector scans in.
func SortIntervals(intervals []*domain.PriceInterval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		a, b := intervals[i], intervals[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if c := compareKey(a.SellerID, a.ProductID, b.SellerID, b.ProductID); c != 0 {
			return c < 0
		}
		return a.End.Before(b.End)
	})
}

// compareObservations returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareObservations(a, b *domain.PriceObservation) int {
	if c := compareKey(a.SellerID, a.ProductID, b.SellerID, b.ProductID); c != 0 {
		return c
	}
	return a.Timestamp.Compare(b.Timestamp)
}

func compareKey(sellerA, productA, sellerB, productB string) int {
	if c := strings.Compare(sellerA, sellerB); c != 0 {
		return c
	}
	return strings.Compare(productA, productB)
}

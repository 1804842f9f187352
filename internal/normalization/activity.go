package normalization

import (
	"retail-signal-lab/internal/domain"
)

// AggregateActivity sums points sharing (seller_id, product_id, timestamp)
// and drops negative readings. Points must be pre-sorted with SortActivity.
func AggregateActivity(points []*domain.ActivityPoint) []*domain.ActivityPoint {
	var result []*domain.ActivityPoint
	var current *domain.ActivityPoint

	for _, p := range points {
		if p.Value < 0 {
			continue
		}
		if current != nil && current.SellerID == p.SellerID && current.ProductID == p.ProductID &&
			current.Timestamp.Equal(p.Timestamp) {
			current.Value += p.Value
			continue
		}
		if current != nil {
			result = append(result, current)
		}
		pointCopy := *p
		current = &pointCopy
	}

	if current != nil {
		result = append(result, current)
	}
	return result
}

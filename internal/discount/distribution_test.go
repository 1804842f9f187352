package discount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-signal-lab/internal/domain"
)

func events(pairs ...any) []domain.DiscountEvent {
	var out []domain.DiscountEvent
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.DiscountEvent{SellerID: pairs[i].(string), Discount: pairs[i+1].(float64)})
	}
	return out
}

func TestDistribution_PerSeller(t *testing.T) {
	dist := Distribution(events("B", 10.0, "A", 20.0, "A", 5.0, "A", 20.0), nil)

	require.Len(t, dist, 2)
	assert.Equal(t, "A", dist[0].Name)
	assert.Equal(t, []DistributionBin{
		{Discount: "5.0000", Count: 1},
		{Discount: "20.0000", Count: 2},
	}, dist[0].Bins)
	assert.Equal(t, "B", dist[1].Name)
	assert.Equal(t, []DistributionBin{{Discount: "10.0000", Count: 1}}, dist[1].Bins)
}

func TestDistribution_MajorSellers(t *testing.T) {
	dist := Distribution(events("A", 10.0, "B", 10.0, "C", 12.5), []string{"A"})

	require.Len(t, dist, 2)
	assert.Equal(t, "A", dist[0].Name)
	assert.Equal(t, OthersGroup, dist[1].Name)
	assert.Equal(t, []DistributionBin{
		{Discount: "10.0000", Count: 1},
		{Discount: "12.5000", Count: 1},
	}, dist[1].Bins)
}

func TestDistribution_Empty(t *testing.T) {
	assert.Empty(t, Distribution(nil, nil))
}

func TestCategorize(t *testing.T) {
	var features []domain.DiscountFeature
	for _, p := range []float64{500, 100, 300, 200, 600, 400} {
		features = append(features, domain.DiscountFeature{Price: p})
	}

	cats, err := Categorize(features)
	require.NoError(t, err)

	// terciles at index 2 and 4 of the sorted prices
	assert.Equal(t, 300.0, cats.MediumPrice)
	assert.Equal(t, 500.0, cats.HighPrice)
	assert.Len(t, cats.Low, 3)
	assert.Len(t, cats.Medium, 2)
	assert.Len(t, cats.High, 1)
}

func TestCategorize_Empty(t *testing.T) {
	_, err := Categorize(nil)
	assert.ErrorIs(t, err, ErrNoFeatures)
}

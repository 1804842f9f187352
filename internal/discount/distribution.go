package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"retail-signal-lab/internal/domain"
)

// OthersGroup collects sellers not listed as major.
const OthersGroup = "Others"

// DistributionBin is the number of events with one discount value.
type DistributionBin struct {
	Discount string `json:"discount"` // percent, 4 decimals
	Count    int    `json:"count"`
}

// SellerDistribution is the discount histogram of one seller or group.
type SellerDistribution struct {
	Name string            `json:"name"`
	Bins []DistributionBin `json:"dist"`
}

// Distribution builds per-seller discount histograms.
// When majorSellers is non-empty, other sellers are merged into OthersGroup.
// Sellers are sorted by name with OthersGroup last, bins by discount ASC.
func Distribution(events []domain.DiscountEvent, majorSellers []string) []SellerDistribution {
	major := make(map[string]bool, len(majorSellers))
	for _, s := range majorSellers {
		major[s] = true
	}

	counts := make(map[string]map[string]int)
	values := make(map[string]decimal.Decimal)
	for _, ev := range events {
		group := ev.SellerID
		if len(major) > 0 && !major[group] {
			group = OthersGroup
		}
		d := decimal.NewFromFloat(ev.Discount).Round(discountPlaces)
		key := d.StringFixed(discountPlaces)
		values[key] = d
		if counts[group] == nil {
			counts[group] = make(map[string]int)
		}
		counts[group][key]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		if name != OthersGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := counts[OthersGroup]; ok {
		names = append(names, OthersGroup)
	}

	out := make([]SellerDistribution, 0, len(names))
	for _, name := range names {
		dist := SellerDistribution{Name: name}
		for key, n := range counts[name] {
			dist.Bins = append(dist.Bins, DistributionBin{Discount: key, Count: n})
		}
		sort.Slice(dist.Bins, func(i, j int) bool {
			return values[dist.Bins[i].Discount].LessThan(values[dist.Bins[j].Discount])
		})
		out = append(out, dist)
	}
	return out
}

// Categories splits discount features into price terciles.
type Categories struct {
	Low         []domain.DiscountFeature // Price <= MediumPrice
	Medium      []domain.DiscountFeature // MediumPrice < Price <= HighPrice
	High        []domain.DiscountFeature // Price > HighPrice
	MediumPrice float64
	HighPrice   float64
}

// Categorize splits features by the price found at the first and second tercile.
func Categorize(features []domain.DiscountFeature) (*Categories, error) {
	if len(features) == 0 {
		return nil, ErrNoFeatures
	}

	prices := make([]float64, len(features))
	for i, f := range features {
		prices[i] = f.Price
	}
	sort.Float64s(prices)

	tercile := len(prices) / 3
	cats := &Categories{
		MediumPrice: prices[tercile],
		HighPrice:   prices[tercile*2],
	}
	for _, f := range features {
		switch {
		case f.Price <= cats.MediumPrice:
			cats.Low = append(cats.Low, f)
		case f.Price <= cats.HighPrice:
			cats.Medium = append(cats.Medium, f)
		default:
			cats.High = append(cats.High, f)
		}
	}
	return cats, nil
}

package domain

import "time"

// DiscountEvent is a detected price drop of a (seller, product) pair.
type DiscountEvent struct {
	EventID     string    // deterministic hash of seller|product|timestamp
	SellerID    string    // seller that lowered the price
	ProductID   string    // discounted product
	Discount    float64   // relative drop in percent, rounded to 4 decimals
	PriceBefore float64   // last known price before the drop
	PriceAfter  float64   // new price
	Timestamp   time.Time // start of the discounted interval
	WindowStart time.Time // past bound for window analysis
	WindowEnd   time.Time // future bound for window analysis
}

// DiscountFeature is the per-event feature row built from window and rank analysis.
// Corresponds to discount_features table in ClickHouse.
type DiscountFeature struct {
	EventID     string
	ProductID   string
	SellerID    string
	StartDate   time.Time // window start
	EndDate     time.Time // window end
	EventDate   time.Time // discount instant
	Price       float64   // price before discount
	Discount    float64   // percent
	DiffAvg     float64   // relative/absolute change of mean activity
	LenDisc     int       // number of bins after the discount
	RankDisc    *int      // NULL when rank analysis is disabled
	NPricesDisc *int
	RankGain    *int
	RankAvg     *float64
	NPricesAvg  *float64
}

// ToRecord flattens a feature row into a pipeline record.
// Nil rank fields are kept as nil so that the merger drops incomplete rows.
func (f *DiscountFeature) ToRecord() Record {
	rec := Record{
		"EventID":   f.EventID,
		"ProductID": f.ProductID,
		"SellerID":  f.SellerID,
		"StartDate": f.StartDate,
		"EndDate":   f.EndDate,
		"Date":      f.EventDate,
		"Price":     f.Price,
		"Discount":  f.Discount,
		"DiffAvg":   f.DiffAvg,
		"LenDisc":   float64(f.LenDisc),
	}
	rec["RankDisc"] = intPtrValue(f.RankDisc)
	rec["NPricesDisc"] = intPtrValue(f.NPricesDisc)
	rec["RankGain"] = intPtrValue(f.RankGain)
	rec["RankAvg"] = floatPtrValue(f.RankAvg)
	rec["NPricesAvg"] = floatPtrValue(f.NPricesAvg)
	return rec
}

// DiscountFeatureFields is the schema of DiscountFeature records.
var DiscountFeatureFields = []Field{
	{Name: "EventID", Type: FieldString},
	{Name: "ProductID", Type: FieldString},
	{Name: "SellerID", Type: FieldString},
	{Name: "StartDate", Type: FieldDatetime},
	{Name: "EndDate", Type: FieldDatetime},
	{Name: "Date", Type: FieldDatetime},
	{Name: "Price", Type: FieldFloat},
	{Name: "Discount", Type: FieldFloat},
	{Name: "DiffAvg", Type: FieldFloat},
	{Name: "LenDisc", Type: FieldFloat},
	{Name: "RankDisc", Type: FieldFloat, Nullable: true},
	{Name: "NPricesDisc", Type: FieldFloat, Nullable: true},
	{Name: "RankGain", Type: FieldFloat, Nullable: true},
	{Name: "RankAvg", Type: FieldFloat, Nullable: true},
	{Name: "NPricesAvg", Type: FieldFloat, Nullable: true},
}

func intPtrValue(v *int) any {
	if v == nil {
		return nil
	}
	return float64(*v)
}

func floatPtrValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

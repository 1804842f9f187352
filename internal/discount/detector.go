// Package discount detects price drops in seller price histories and turns
// them into window/rank features.
package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/idhash"
)

// Detection defaults.
const (
	DefaultOutlierThreshold = 0.8
	DefaultFutureDays       = 3
	decimalShiftFactor      = 100
	discountPlaces          = 4
	day                     = 24 * time.Hour
)

// WarningKind classifies a data integrity warning.
type WarningKind string

const (
	// WarningOutlier marks a drop above the outlier threshold that was discarded.
	WarningOutlier WarningKind = "outlier_drop"
	// WarningDecimalShift marks a price exactly 100x the previous one that was discarded.
	WarningDecimalShift WarningKind = "decimal_shift"
)

// DataIntegrityWarning is a price reading the detector refused to accept.
// The running price stays at PriceBefore.
type DataIntegrityWarning struct {
	Kind        WarningKind
	SellerID    string
	ProductID   string
	PriceBefore float64
	PriceAfter  float64 // rejected price
	Timestamp   time.Time
}

func (w DataIntegrityWarning) String() string {
	return fmt.Sprintf("%s: seller=%s product=%s %.4f -> %.4f at %s",
		w.Kind, w.SellerID, w.ProductID, w.PriceBefore, w.PriceAfter, w.Timestamp.Format(time.RFC3339))
}

// Config controls discount detection and window bounds.
type Config struct {
	// PastDays, when > 0, starts the window PastDays before the event
	// instead of at the previous interval start.
	PastDays int
	// FutureDays, when > 0, clips the window end to event + FutureDays.
	// It is also the fallback length for events on point or last intervals.
	FutureDays int
	// OutlierThreshold is the relative drop above which a reading is rejected.
	OutlierThreshold float64
	// Progress is called after each interval. Must not block.
	Progress func(done, total int)
}

// ScanResult holds detected events and rejected readings.
type ScanResult struct {
	Events   []domain.DiscountEvent
	Warnings []DataIntegrityWarning
}

// Detector scans price intervals for discount events.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector, filling zero config values with defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.OutlierThreshold == 0 {
		cfg.OutlierThreshold = DefaultOutlierThreshold
	}
	return &Detector{cfg: cfg}
}

type pairKey struct {
	seller  string
	product string
}

// running is the last accepted price of a (seller, product) pair.
type running struct {
	price float64
	start time.Time
}

// Scan walks intervals in Start order keeping a running price per (seller, product).
// The first interval of a pair only initialises it. Intervals must be sorted by Start ASC.
func (d *Detector) Scan(intervals []domain.PriceInterval) (*ScanResult, error) {
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start.Before(intervals[i-1].Start) {
			return nil, fmt.Errorf("%w: index %d", ErrUnsorted, i)
		}
	}

	result := &ScanResult{}
	state := make(map[pairKey]*running)
	total := len(intervals)

	for i := range intervals {
		rec := &intervals[i]
		key := pairKey{seller: rec.SellerID, product: rec.ProductID}

		st, ok := state[key]
		if !ok {
			state[key] = &running{price: rec.Price, start: rec.Start}
			d.progress(i+1, total)
			continue
		}

		prev := st.price
		curr := rec.Price
		switch {
		case prev > curr:
			rel := 1.0 - curr/prev
			if rel > d.cfg.OutlierThreshold {
				result.Warnings = append(result.Warnings, warning(WarningOutlier, rec, prev))
				curr = prev
				break
			}
			result.Events = append(result.Events, d.event(rec, st, prev, rel))
		case prev != 0 && curr == prev*decimalShiftFactor:
			result.Warnings = append(result.Warnings, warning(WarningDecimalShift, rec, prev))
			curr = prev
		}

		st.price = curr
		st.start = rec.Start
		d.progress(i+1, total)
	}

	return result, nil
}

func (d *Detector) event(rec *domain.PriceInterval, st *running, prev, rel float64) domain.DiscountEvent {
	start, end := d.bounds(rec, st)
	return domain.DiscountEvent{
		EventID:     idhash.ComputeEventID(rec.SellerID, rec.ProductID, rec.Start),
		SellerID:    rec.SellerID,
		ProductID:   rec.ProductID,
		Discount:    roundDiscount(rel),
		PriceBefore: prev,
		PriceAfter:  rec.Price,
		Timestamp:   rec.Start,
		WindowStart: start,
		WindowEnd:   end,
	}
}

// bounds computes the analysis window of a discount on rec.
func (d *Detector) bounds(rec *domain.PriceInterval, st *running) (time.Time, time.Time) {
	start := st.start
	if d.cfg.PastDays > 0 {
		start = rec.Start.Add(-time.Duration(d.cfg.PastDays) * day)
	}

	futureOffset := time.Duration(DefaultFutureDays) * day
	end := rec.End
	if d.cfg.FutureDays > 0 {
		futureOffset = time.Duration(d.cfg.FutureDays) * day
		if clipped := rec.Start.Add(futureOffset); clipped.Before(end) {
			end = clipped
		}
	}

	// Discount on a point or open-ended interval: look a fixed span ahead
	if rec.Start.Equal(end) {
		end = rec.Start.Add(futureOffset)
	}
	return start, end
}

func (d *Detector) progress(done, total int) {
	if d.cfg.Progress != nil {
		d.cfg.Progress(done, total)
	}
}

func warning(kind WarningKind, rec *domain.PriceInterval, prev float64) DataIntegrityWarning {
	return DataIntegrityWarning{
		Kind:        kind,
		SellerID:    rec.SellerID,
		ProductID:   rec.ProductID,
		PriceBefore: prev,
		PriceAfter:  rec.Price,
		Timestamp:   rec.Start,
	}
}

// roundDiscount converts a relative drop into percent rounded to 4 places.
func roundDiscount(rel float64) float64 {
	pct, _ := decimal.NewFromFloat(rel).Mul(decimal.NewFromInt(100)).Round(discountPlaces).Float64()
	return pct
}

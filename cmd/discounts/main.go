// Package main detects discount events and prints their features.
// Executes: readings → price intervals → discount features → distribution
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/discount"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/logging"
	"retail-signal-lab/internal/modules"
	"retail-signal-lab/internal/normalization"
	"retail-signal-lab/internal/resources"
	"retail-signal-lab/internal/storage"
)

// Output is the JSON document printed to stdout.
type Output struct {
	Normalized   *normalization.Result         `json:"normalized,omitempty"`
	Features     []*domain.DiscountFeature     `json:"features"`
	Distribution []discount.SellerDistribution `json:"distribution"`
	MediumPrice  *float64                      `json:"medium_price,omitempty"`
	HighPrice    *float64                      `json:"high_price,omitempty"`
}

func main() {
	// Parse flags
	appConfigPath := flag.String("app-config", "", "Application config (databases, sources)")
	sourceName := flag.String("source", "", "Record source with raw readings; skips normalization when empty")
	pricesCollection := flag.String("prices", "price_observations", "Collection of seller_id, product_id, price, timestamp readings")
	activityCollection := flag.String("activity", "activity", "Collection of seller_id, product_id, timestamp, value readings")
	maxGap := flag.Duration("max-gap", 0, "Close an interval when readings are further apart (0 disables)")
	product := flag.String("product", "", "Restrict to one product")
	pastDays := flag.Int("past-days", 0, "Window start in days before the event (0: previous price change)")
	futureDays := flag.Int("future-days", 0, "Window end in days after the event (0: next price change)")
	outlier := flag.Float64("outlier", discount.DefaultOutlierThreshold, "Relative drop above which a reading is rejected")
	binSize := flag.Int("bin-size", 0, "Bin width in hours (0: default)")
	relative := flag.Bool("relative", false, "Relative instead of absolute activity differences")
	includeRank := flag.Bool("include-rank", false, "Add competitor rank features")
	majorSellers := flag.String("major-sellers", "", "Comma-separated sellers kept apart in the distribution")
	flag.Parse()

	ctx := context.Background()
	if err := run(ctx, runOptions{
		appConfigPath: *appConfigPath,
		source:        *sourceName,
		prices:        *pricesCollection,
		activity:      *activityCollection,
		maxGap:        *maxGap,
		product:       *product,
		majorSellers:  splitList(*majorSellers),
		params: map[string]any{
			"product":           *product,
			"past_days":         *pastDays,
			"future_days":       *futureDays,
			"outlier_threshold": *outlier,
			"bin_size":          *binSize,
			"relative":          *relative,
			"include_rank":      *includeRank,
		},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	appConfigPath string
	source        string
	prices        string
	activity      string
	maxGap        time.Duration
	product       string
	majorSellers  []string
	params        map[string]any
}

func run(ctx context.Context, opts runOptions) error {
	app := config.Default()
	if opts.appConfigPath != "" {
		var err error
		if app, err = config.LoadAndValidate(opts.appConfigPath); err != nil {
			return err
		}
	}

	logger, err := logging.New(app.Logging.Level, app.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	set, cleanup, err := resources.Open(ctx, app, logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	res := set.Modules

	var out Output

	// Phase 1: Normalize raw readings
	if opts.source != "" {
		logger.Info("Phase 1: Normalizing readings", zap.String("source", opts.source))
		src, err := res.Source(opts.source)
		if err != nil {
			return err
		}
		obs, activity, err := loadReadings(ctx, src, opts.prices, opts.activity, opts.product)
		if err != nil {
			return fmt.Errorf("phase 1 (load readings) failed: %w", err)
		}
		runner := normalization.NewRunner(res.Intervals, res.Activity, normalization.IntervalOptions{
			Horizon: time.Now().UTC(),
			MaxGap:  opts.maxGap,
		})
		if out.Normalized, err = runner.Normalize(ctx, obs, activity); err != nil {
			return fmt.Errorf("phase 1 (normalize) failed: %w", err)
		}
	}

	// Phase 2: Build and store discount features
	logger.Info("Phase 2: Building discount features")
	tr, err := modules.NewRegistry(res).Transformation(modules.DiscountFeatures)
	if err != nil {
		return err
	}
	if err := tr.Transform(ctx, config.ModuleSpec{Module: modules.DiscountFeatures, Params: opts.params}); err != nil {
		return fmt.Errorf("phase 2 (discount features) failed: %w", err)
	}

	// Phase 3: Distribution and price categories
	logger.Info("Phase 3: Summarizing")
	if opts.product != "" {
		out.Features, err = res.Features.GetByProduct(ctx, opts.product)
	} else {
		out.Features, err = res.Features.GetAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("phase 3 (load features) failed: %w", err)
	}

	rows := make([]domain.DiscountFeature, len(out.Features))
	events := make([]domain.DiscountEvent, len(out.Features))
	for i, f := range out.Features {
		rows[i] = *f
		events[i] = domain.DiscountEvent{EventID: f.EventID, SellerID: f.SellerID, ProductID: f.ProductID, Discount: f.Discount}
	}
	out.Distribution = discount.Distribution(events, opts.majorSellers)
	if cats, err := discount.Categorize(rows); err == nil {
		out.MediumPrice = &cats.MediumPrice
		out.HighPrice = &cats.HighPrice
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// loadReadings maps source records to price observations and activity points.
// Records missing a seller, product or timestamp are skipped.
func loadReadings(ctx context.Context, src storage.RecordSource, prices, activity, product string) ([]*domain.PriceObservation, []*domain.ActivityPoint, error) {
	var filters []storage.Filter
	if product != "" {
		filters = append(filters, storage.Filter{Field: "product_id", Op: storage.OpEq, Value: product})
	}

	priceRecs, err := src.Query(ctx, storage.Query{Collection: prices, Filters: filters, SortBy: "timestamp"})
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", prices, err)
	}
	obs := make([]*domain.PriceObservation, 0, len(priceRecs))
	for _, r := range priceRecs {
		ts, okTS := r.Time("timestamp")
		price, okPrice := r.Float("price")
		if !okTS || !okPrice || r.String("seller_id") == "" || r.String("product_id") == "" {
			continue
		}
		obs = append(obs, &domain.PriceObservation{
			SellerID:  r.String("seller_id"),
			ProductID: r.String("product_id"),
			Price:     price,
			Timestamp: ts,
		})
	}

	actRecs, err := src.Query(ctx, storage.Query{Collection: activity, Filters: filters, SortBy: "timestamp"})
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", activity, err)
	}
	points := make([]*domain.ActivityPoint, 0, len(actRecs))
	for _, r := range actRecs {
		ts, okTS := r.Time("timestamp")
		value, okValue := r.Float("value")
		if !okTS || !okValue || r.String("seller_id") == "" || r.String("product_id") == "" {
			continue
		}
		points = append(points, &domain.ActivityPoint{
			SellerID:  r.String("seller_id"),
			ProductID: r.String("product_id"),
			Timestamp: ts,
			Value:     value,
		})
	}
	return obs, points, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

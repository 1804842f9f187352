package modules

import (
	"context"
	"fmt"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/merge"
)

type discountExtractorParams struct {
	Product        string   `yaml:"product"`
	Features       []string `yaml:"features"`
	NotFeatures    []string `yaml:"not_features"`
	IncludeRank    bool     `yaml:"include_rank"`
	ForecastOffset int      `yaml:"forecast_offset"`
}

// DiscountExtractorModule turns stored discount features into a feature collection.
// Rank fields are nullable and only selected with include_rank, since any nil
// feature drops the record from the merge.
type DiscountExtractorModule struct {
	res *Resources
}

// ExtractFeatures implements FeatureExtractor.
func (m *DiscountExtractorModule) ExtractFeatures(ctx context.Context, run *Run, spec config.ModuleSpec) (*merge.FeatureSet, error) {
	if m.res.Features == nil {
		return nil, fmt.Errorf("%w: discount features", ErrNoStore)
	}
	var p discountExtractorParams
	if err := spec.Decode(&p); err != nil {
		return nil, err
	}
	include, err := compilePatterns(p.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	exclude, err := compilePatterns(p.NotFeatures)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	var rows []*domain.DiscountFeature
	if p.Product != "" {
		rows, err = m.res.Features.GetByProduct(ctx, p.Product)
	} else {
		rows, err = m.res.Features.GetAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load discount features: %w", err)
	}

	records := make([]domain.Record, len(rows))
	for i, f := range rows {
		records[i] = f.ToRecord()
	}

	candidates := discountFieldCandidates(run.Input.PrimaryKey, p.IncludeRank)
	keys, features := selectFields(candidates, run.Input.PrimaryKey, include, exclude, m.res.logger())
	return writeFeatureSet(ctx, run, spec, keys, features, records, p.ForecastOffset, m.res)
}

// discountFieldCandidates lists key fields and the numeric discount fields eligible as features.
func discountFieldCandidates(primaryKey []string, includeRank bool) []domain.Field {
	isKey := make(map[string]bool, len(primaryKey))
	for _, k := range primaryKey {
		isKey[k] = true
	}

	var out []domain.Field
	for _, f := range domain.DiscountFeatureFields {
		switch {
		case isKey[f.Name]:
			out = append(out, f)
		case f.Type != domain.FieldFloat:
		case f.Nullable && !includeRank:
		default:
			out = append(out, f)
		}
	}
	return out
}

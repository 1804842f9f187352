package modules

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/merge"
)

type selectorParams struct {
	sourceParams   `yaml:",inline"`
	Features       []string `yaml:"features"`     // regexes, every field when empty
	NotFeatures    []string `yaml:"not_features"` // regexes, applied first
	ForecastOffset int      `yaml:"forecast_offset"`
}

// FeatureSelectorModule selects numeric fields of a source collection as features.
// Datetime and string fields are skipped with a warning; primary key fields are
// kept in the collection for keying but never become features.
type FeatureSelectorModule struct {
	res *Resources
}

// ExtractFeatures implements FeatureExtractor.
func (m *FeatureSelectorModule) ExtractFeatures(ctx context.Context, run *Run, spec config.ModuleSpec) (*merge.FeatureSet, error) {
	var p selectorParams
	if err := spec.Decode(&p); err != nil {
		return nil, err
	}
	q, err := p.query()
	if err != nil {
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
	src, err := m.res.Source(p.Source)
	if err != nil {
		return nil, err
	}

	srcFields, err := src.Fields(ctx, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("feature fields: %w", err)
	}
	records, err := src.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("feature query: %w", err)
	}

	keyFields, features := selectFields(srcFields, run.Input.PrimaryKey, include, exclude, m.res.logger())
	return writeFeatureSet(ctx, run, spec, keyFields, features, records, p.ForecastOffset, m.res)
}

// selectFields splits src into primary key fields and selected feature fields.
func selectFields(src []domain.Field, primaryKey []string, include, exclude []*regexp.Regexp, logger *zap.Logger) ([]domain.Field, []domain.Field) {
	isKey := make(map[string]bool, len(primaryKey))
	for _, k := range primaryKey {
		isKey[k] = true
	}

	var keys, features []domain.Field
	for _, f := range src {
		if isKey[f.Name] {
			keys = append(keys, f)
			continue
		}
		if matchAny(exclude, f.Name) {
			continue
		}
		if len(include) > 0 && !matchAny(include, f.Name) {
			continue
		}
		switch f.Type {
		case domain.FieldDatetime, domain.FieldString:
			logger.Warn("feature field type not supported, skipping",
				zap.String("field", f.Name),
				zap.String("type", string(f.Type)),
			)
			continue
		}
		features = append(features, f)
	}
	return keys, features
}

// writeFeatureSet stores key and feature fields of records in the module's
// collection and returns them as a merge input.
func writeFeatureSet(ctx context.Context, run *Run, spec config.ModuleSpec, keys, features []domain.Field, records []domain.Record, offset int, res *Resources) (*merge.FeatureSet, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s selected no features", config.ErrInvalidConfig, spec.Collection())
	}

	fields := append(append([]domain.Field{}, keys...), features...)
	projected := make([]domain.Record, len(records))
	for i, r := range records {
		rec := make(domain.Record, len(fields))
		for _, f := range fields {
			if v, ok := r[f.Name]; ok {
				rec[f.Name] = v
			}
		}
		projected[i] = rec
	}

	name := spec.Collection()
	if err := run.Store.CreateCollection(ctx, name, fields); err != nil {
		return nil, err
	}
	if err := run.Store.Insert(ctx, name, projected); err != nil {
		return nil, err
	}

	featureNames := make([]string, len(features))
	for i, f := range features {
		featureNames[i] = f.Name
	}

	res.Metrics.RecordExtracted(name, len(projected))
	res.logger().Info("features extracted",
		zap.String("module", spec.Module),
		zap.String("collection", name),
		zap.Int("records", len(projected)),
		zap.Strings("features", featureNames),
		zap.Int("forecast_offset", offset),
	)

	return &merge.FeatureSet{
		Name:           name,
		Records:        projected,
		Fields:         featureNames,
		ForecastOffset: offset,
	}, nil
}

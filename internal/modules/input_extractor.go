package modules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
)

type inputParams struct {
	sourceParams `yaml:",inline"`
	TargetVar    string    `yaml:"target_var"`
	Thresh       []float64 `yaml:"thresh"`
}

// InputExtractorModule copies the primary key fields and the target variable
// of a source collection into Input. The target is renamed to Value.
//
// With one threshold t the target becomes 1 (>= t) or -1. With two thresholds
// lo, hi it becomes -1 (<= lo), 1 (>= hi) or 0, and zero records are dropped.
// In fit modes records without a target are skipped.
type InputExtractorModule struct {
	res *Resources
}

// ExtractInput implements InputExtractor.
func (m *InputExtractorModule) ExtractInput(ctx context.Context, run *Run, spec config.ModuleSpec) error {
	var p inputParams
	if err := spec.Decode(&p); err != nil {
		return err
	}
	if p.TargetVar == "" {
		return fmt.Errorf("%w: %s.target_var", ErrMissingParam, spec.Module)
	}
	if len(p.Thresh) > 2 {
		return fmt.Errorf("%w: %s.thresh takes one or two values", config.ErrInvalidConfig, spec.Module)
	}
	q, err := p.query()
	if err != nil {
		return err
	}
	src, err := m.res.Source(p.Source)
	if err != nil {
		return err
	}

	srcFields, err := src.Fields(ctx, q.Collection)
	if err != nil {
		return fmt.Errorf("input fields: %w", err)
	}
	fields, hasTarget := inputFields(srcFields, run.Input.PrimaryKey, p.TargetVar, run.Mode)

	records, err := src.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("input query: %w", err)
	}

	out := make([]domain.Record, 0, len(records))
	skipped := 0
	for _, r := range records {
		rec := make(domain.Record, len(fields))
		for _, f := range fields {
			if f.Name != domain.FieldValue {
				rec[f.Name] = r[f.Name]
			}
		}
		if hasTarget {
			value, keep := targetValue(r[p.TargetVar], p.Thresh, run.Mode.IsFit())
			if !keep {
				skipped++
				continue
			}
			rec[domain.FieldValue] = value
		}
		out = append(out, rec)
	}

	if err := run.Store.CreateCollection(ctx, domain.CollectionInput, fields); err != nil {
		return err
	}
	if err := run.Store.Insert(ctx, domain.CollectionInput, out); err != nil {
		return err
	}

	m.res.Metrics.RecordExtracted(domain.CollectionInput, len(out))
	m.res.logger().Info("input extracted",
		zap.String("collection", q.Collection),
		zap.Int("records", len(out)),
		zap.Int("skipped", skipped),
		zap.Bool("has_value", hasTarget),
	)
	return nil
}

// inputFields keeps source fields named in the primary key and the target,
// which is renamed to Value. The target may be null outside fit modes.
func inputFields(src []domain.Field, primaryKey []string, target string, mode domain.Mode) ([]domain.Field, bool) {
	isKey := make(map[string]bool, len(primaryKey))
	for _, k := range primaryKey {
		isKey[k] = true
	}

	var fields []domain.Field
	hasTarget := false
	for _, f := range src {
		switch {
		case f.Name == target:
			hasTarget = true
			f.Name = domain.FieldValue
			f.Type = domain.FieldFloat
			if !mode.IsFit() {
				f.Nullable = true
			}
			fields = append(fields, f)
		case isKey[f.Name]:
			fields = append(fields, f)
		}
	}
	return fields, hasTarget
}

// targetValue converts a raw target into Value. keep is false when the record must be dropped.
func targetValue(raw any, thresh []float64, fit bool) (any, bool) {
	v, ok := domain.ToFloat(raw)
	if !ok {
		return nil, !fit
	}

	switch len(thresh) {
	case 1:
		if v >= thresh[0] {
			return 1.0, true
		}
		return -1.0, true
	case 2:
		switch {
		case v <= thresh[0]:
			return -1.0, true
		case v >= thresh[1]:
			return 1.0, true
		default:
			return 0.0, false
		}
	}
	return v, true
}

package merge

import (
	"errors"
	"fmt"
	"sort"

	"retail-signal-lab/internal/domain"
)

// ErrEmptyResult is returned when no input record survives the merge.
var ErrEmptyResult = errors.New("no records survived feature merge")

// FeatureSet is one extraction module's feature records.
type FeatureSet struct {
	Name           string
	Records        []domain.Record
	Fields         []string // feature fields to copy, all non-key fields when empty
	ForecastOffset int      // days the features lead the day they predict
}

// Result is the merge output.
type Result struct {
	FtrSpace      []domain.Record // feature fields only
	InputFeat     []domain.Record // input fields of surviving records
	Mapping       map[domain.PipelineKey]domain.Record
	FeatureFields []string // union of feature fields in set order
	Skipped       int      // input records dropped
	Misses        map[string]int
}

// Merge enriches each input record with the features of every set.
// A record is dropped when any set has no features for its key or any
// copied feature is nil. FtrSpace[i] and InputFeat[i] describe the same record.
// Duplicate feature keys within a set resolve to the last record.
func Merge(input []domain.Record, sets []FeatureSet, cfg KeyConfig) (*Result, error) {
	type lookup struct {
		fields []string
		used   map[string]bool
		byKey  map[domain.PipelineKey]domain.Record
	}

	lookups := make([]lookup, len(sets))
	result := &Result{
		Mapping: make(map[domain.PipelineKey]domain.Record),
		Misses:  make(map[string]int, len(sets)),
	}

	seen := make(map[string]bool)
	for i, set := range sets {
		fields := set.Fields
		if len(fields) == 0 {
			fields = featureFields(set.Records, cfg.PrimaryKey)
		}
		l := lookup{
			fields: fields,
			used:   usedFields(set.Records, cfg),
			byKey:  make(map[domain.PipelineKey]domain.Record, len(set.Records)),
		}
		for _, rec := range set.Records {
			l.byKey[deriveKey(rec, cfg, set.ForecastOffset, nil)] = rec
		}
		lookups[i] = l
		result.Misses[set.Name] = 0

		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				result.FeatureFields = append(result.FeatureFields, f)
			}
		}
	}

	for _, in := range input {
		merged := make(domain.Record, len(result.FeatureFields))
		complete := true

		for i, l := range lookups {
			feat, ok := l.byKey[deriveKey(in, cfg, 0, l.used)]
			if !ok {
				result.Misses[sets[i].Name]++
				complete = false
				continue
			}
			for _, f := range l.fields {
				v := feat[f]
				if v == nil {
					complete = false
				}
				merged[f] = v
			}
		}

		if !complete {
			result.Skipped++
			continue
		}

		result.FtrSpace = append(result.FtrSpace, merged)
		result.InputFeat = append(result.InputFeat, in.Clone())
		result.Mapping[DeriveKey(in, cfg, 0)] = merged
	}

	if len(result.FtrSpace) == 0 {
		return result, fmt.Errorf("%w: %d input records, %d skipped", ErrEmptyResult, len(input), result.Skipped)
	}
	return result, nil
}

// featureFields lists every non-key field found in records, sorted.
func featureFields(records []domain.Record, primaryKey []string) []string {
	isKey := make(map[string]bool, len(primaryKey))
	for _, k := range primaryKey {
		isKey[k] = true
	}
	set := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			if !isKey[k] {
				set[k] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

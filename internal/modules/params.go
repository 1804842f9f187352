package modules

import (
	"fmt"
	"regexp"
	"time"

	"retail-signal-lab/internal/storage"
)

// FilterParam is a record filter written in a pipeline specification.
// String values that parse as RFC 3339 timestamps or YYYY-MM-DD dates compare as datetimes.
type FilterParam struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

// sourceParams select the records a module reads.
type sourceParams struct {
	Source     string        `yaml:"source"`
	InputStore string        `yaml:"input_store"`
	Filters    []FilterParam `yaml:"filters"`
}

func (p sourceParams) query() (storage.Query, error) {
	if p.InputStore == "" {
		return storage.Query{}, fmt.Errorf("%w: input_store", ErrMissingParam)
	}
	q := storage.Query{Collection: p.InputStore}
	for _, f := range p.Filters {
		op := storage.FilterOp(f.Op)
		if op == "" {
			op = storage.OpEq
		}
		q.Filters = append(q.Filters, storage.Filter{Field: f.Field, Op: op, Value: filterValue(f.Value)})
	}
	return q, q.Validate()
}

func filterValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	return s
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("feature pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-signal-lab/internal/domain"
)

// FilterOp is a comparison operator of a query filter.
type FilterOp string

// Supported filter operators.
const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
)

// SQL returns the SQL operator.
func (op FilterOp) SQL() (string, error) {
	switch op {
	case OpEq, "":
		return "=", nil
	case OpNeq:
		return "<>", nil
	case OpGt:
		return ">", nil
	case OpGte:
		return ">=", nil
	case OpLt:
		return "<", nil
	case OpLte:
		return "<=", nil
	default:
		return "", fmt.Errorf("%w: unknown filter operator %q", ErrInvalidInput, string(op))
	}
}

// Filter restricts a query to records whose Field compares to Value.
type Filter struct {
	Field string   `yaml:"field" json:"field"`
	Op    FilterOp `yaml:"op" json:"op"` // eq when empty
	Value any      `yaml:"value" json:"value"`
}

// Query selects records from a collection.
type Query struct {
	Collection string
	Filters    []Filter
	SortBy     string // no ordering guarantee when empty
	Desc       bool
	Limit      int // 0 means no limit
}

// Validate checks the query shape.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidInput)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter without field", ErrInvalidInput)
		}
		if _, err := f.Op.SQL(); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidInput)
	}
	return nil
}

// Match reports whether rec passes every filter.
// Missing or nil fields never match.
func Match(rec domain.Record, filters []Filter) bool {
	for _, f := range filters {
		v, ok := rec[f.Field]
		if !ok || v == nil {
			return false
		}
		c, ok := Compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq, "":
			if c != 0 {
				return false
			}
		case OpNeq:
			if c == 0 {
				return false
			}
		case OpGt:
			if c <= 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLt:
			if c >= 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Compare orders two record values of compatible types.
// ok is false when the values cannot be compared.
func Compare(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if fa, ok := domain.ToFloat(a); ok {
		fb, ok := domain.ToFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

// Apply filters, sorts and limits records in memory.
// Records with a missing sort field sort last. The input slice is not modified.
func Apply(records []domain.Record, q Query) []domain.Record {
	var out []domain.Record
	for _, rec := range records {
		if Match(rec, q.Filters) {
			out = append(out, rec.Clone())
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, aok := out[i][q.SortBy]
			b, bok := out[j][q.SortBy]
			if !aok || a == nil {
				return false
			}
			if !bok || b == nil {
				return true
			}
			c, _ := Compare(a, b)
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// NormalizeValue converts driver values to record conventions:
// integers and floats become float64, byte slices strings, pointers are dereferenced.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time, string, bool, float64:
		return val
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case *float64:
		if val == nil {
			return nil
		}
		return *val
	case *int64:
		if val == nil {
			return nil
		}
		return float64(*val)
	case []byte:
		return string(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	}
	if f, ok := domain.ToFloat(v); ok {
		return f
	}
	return fmt.Sprint(v)
}

package domain

import (
	"fmt"
	"time"
)

// FieldType is the declared type of a record field.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldFloat    FieldType = "float"
	FieldInt      FieldType = "int"
	FieldBool     FieldType = "bool"
	FieldDatetime FieldType = "datetime"
)

// Field describes one column of a collection.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Nullable bool      `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// Record is a schemaless key-value row flowing through the pipeline.
// Datetime values are time.Time, numeric values float64.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float returns the named field as float64.
// ok is false when the field is missing, nil or not numeric.
func (r Record) Float(name string) (float64, bool) {
	return ToFloat(r[name])
}

// Time returns the named field as time.Time.
func (r Record) Time(name string) (time.Time, bool) {
	t, ok := r[name].(time.Time)
	return t, ok
}

// String returns the named field formatted as a string ("" when missing).
func (r Record) String(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToFloat converts numeric record values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// InferFieldType guesses the field type from a Go value.
func InferFieldType(v any) FieldType {
	switch v.(type) {
	case time.Time:
		return FieldDatetime
	case bool:
		return FieldBool
	case int, int32, int64, uint32, uint64:
		return FieldInt
	case float32, float64:
		return FieldFloat
	default:
		return FieldString
	}
}

// Collection is a named set of records sharing a schema.
type Collection struct {
	Name    string
	Fields  []Field
	Records []Record
}

// HasField reports whether the schema declares the named field.
func (c *Collection) HasField(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldNames returns field names in schema order.
func (c *Collection) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// InferFields builds a schema from the first record carrying each field.
// Field order follows the order fields are first seen in keys.
func InferFields(records []Record, keys []string) []Field {
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		f := Field{Name: k, Type: FieldString}
		for _, rec := range records {
			v, ok := rec[k]
			if !ok || v == nil {
				f.Nullable = true
				continue
			}
			f.Type = InferFieldType(v)
			break
		}
		fields = append(fields, f)
	}
	return fields
}

// Well-known collection names of the working store.
const (
	CollectionInput     = "Input"
	CollectionFtrSpace  = "FtrSpace"
	CollectionInputFeat = "InputFeat"
	CollectionOutput    = "Output"
)

// Well-known field names.
const (
	FieldValue = "Value"
)

// PipelineKey is the encoded composite key used to align collections.
type PipelineKey string

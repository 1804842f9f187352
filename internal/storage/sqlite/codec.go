package sqlite

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// Value tags of the record encoding. JSON cannot tell a timestamp from a string.
const (
	tagTime  = "t"
	tagNull  = "n"
	tagFloat = "f" // NaN and ±Inf, which JSON numbers cannot carry
)

// encodedValue is one record field on disk.
type encodedValue struct {
	Tag   string          `json:"k,omitempty"`
	Value json.RawMessage `json:"v,omitempty"`
}

func encodeRecord(rec domain.Record) (string, error) {
	out := make(map[string]encodedValue, len(rec))
	for k, v := range rec {
		switch val := storage.NormalizeValue(v).(type) {
		case nil:
			out[k] = encodedValue{Tag: tagNull}
		case time.Time:
			raw, _ := json.Marshal(val.UTC().Format(time.RFC3339Nano))
			out[k] = encodedValue{Tag: tagTime, Value: raw}
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				raw, _ := json.Marshal(formatNonFinite(val))
				out[k] = encodedValue{Tag: tagFloat, Value: raw}
				continue
			}
			raw, _ := json.Marshal(val)
			out[k] = encodedValue{Value: raw}
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("encode field %s: %w", k, err)
			}
			out[k] = encodedValue{Value: raw}
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(data string) (domain.Record, error) {
	var in map[string]encodedValue
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	rec := make(domain.Record, len(in))
	for k, ev := range in {
		switch ev.Tag {
		case tagNull:
			rec[k] = nil
		case tagTime:
			var s string
			if err := json.Unmarshal(ev.Value, &s); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", k, err)
			}
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("decode field %s: %w", k, err)
			}
			rec[k] = ts
		case tagFloat:
			var s string
			if err := json.Unmarshal(ev.Value, &s); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", k, err)
			}
			f, err := parseNonFinite(s)
			if err != nil {
				return nil, fmt.Errorf("decode field %s: %w", k, err)
			}
			rec[k] = f
		default:
			var v any
			if err := json.Unmarshal(ev.Value, &v); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", k, err)
			}
			rec[k] = v
		}
	}
	return rec, nil
}

func formatNonFinite(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	default:
		return "NaN"
	}
}

func parseNonFinite(s string) (float64, error) {
	switch s {
	case "+Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("unknown float literal %q", s)
}

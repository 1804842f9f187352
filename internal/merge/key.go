// Package merge joins feature collections with input records on a composite key.
package merge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"retail-signal-lab/internal/domain"
)

// KeyConfig selects the primary key fields and date handling.
// The same config must be used to build a lookup map and to probe it.
type KeyConfig struct {
	PrimaryKey   []string
	KeepOnlyDate bool
}

// absent marks a primary key field the record does not carry.
const absent = "<absent>"

// DeriveKey encodes the primary key fields of rec.
// Datetime values are shifted by -offset days and, with KeepOnlyDate,
// truncated to the UTC calendar day.
func DeriveKey(rec domain.Record, cfg KeyConfig, offset int) domain.PipelineKey {
	return deriveKey(rec, cfg, offset, nil)
}

// deriveKey encodes rec's key. When allowed is non-nil, fields outside it are encoded as absent.
func deriveKey(rec domain.Record, cfg KeyConfig, offset int, allowed map[string]bool) domain.PipelineKey {
	var b strings.Builder
	for i, field := range cfg.PrimaryKey {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(field)
		b.WriteByte('=')

		v, ok := rec[field]
		if !ok || (allowed != nil && !allowed[field]) {
			b.WriteString(absent)
			continue
		}
		b.WriteString(encodeValue(v, cfg.KeepOnlyDate, offset))
	}
	return domain.PipelineKey(b.String())
}

// usedFields returns primary key fields present in at least one record.
func usedFields(records []domain.Record, cfg KeyConfig) map[string]bool {
	used := make(map[string]bool, len(cfg.PrimaryKey))
	for _, field := range cfg.PrimaryKey {
		for _, rec := range records {
			if _, ok := rec[field]; ok {
				used[field] = true
				break
			}
		}
	}
	return used
}

func encodeValue(v any, keepOnlyDate bool, offset int) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case time.Time:
		t := val.UTC()
		if offset != 0 {
			t = t.AddDate(0, 0, -offset)
		}
		if keepOnlyDate {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return "t:" + strconv.FormatInt(t.UnixMilli(), 10)
	case string:
		return strconv.Quote(val)
	}
	if f, ok := domain.ToFloat(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.Quote(fmt.Sprint(v))
}

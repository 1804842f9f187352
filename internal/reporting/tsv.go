package reporting

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-signal-lab/internal/domain"
)

// Column names appended to every prediction row.
const (
	ColumnInputValue  = "InputValue"
	ColumnOutputValue = "OutputValue"
)

// PredictionHeader renders the header line for fields.
func PredictionHeader(fields []string) string {
	cols := append(append([]string{}, fields...), ColumnInputValue, ColumnOutputValue)
	return strings.Join(cols, "\t")
}

// WriteTSV writes one line per input record: the named fields, the input Value
// and the Value of the output record at the same position.
func WriteTSV(w io.Writer, fields []string, inputs, outputs []domain.Record, header bool) error {
	if len(inputs) != len(outputs) {
		return fmt.Errorf("tsv: %d input records, %d output records", len(inputs), len(outputs))
	}

	bw := bufio.NewWriter(w)
	if header {
		if _, err := bw.WriteString(PredictionHeader(fields) + "\n"); err != nil {
			return err
		}
	}

	cols := make([]string, 0, len(fields)+2)
	for i, in := range inputs {
		cols = cols[:0]
		for _, f := range fields {
			cols = append(cols, FormatValue(in[f]))
		}
		cols = append(cols, FormatValue(in[domain.FieldValue]), FormatValue(outputs[i][domain.FieldValue]))
		if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatValue renders a record value for text output.
// Floats use the shortest exact decimal form, times RFC 3339, nil "null".
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case bool:
		if val {
			return "true"
		}
		return "false"
	}
	if f, ok := domain.ToFloat(v); ok {
		return formatFloat(f)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return decimal.NewFromFloat(f).String()
}

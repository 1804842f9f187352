package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// PredictionPoint is one row of a prediction plot.
type PredictionPoint struct {
	Label     string   `json:"label"`
	Actual    *float64 `json:"actual"`
	Predicted *float64 `json:"predicted"`
}

// PredictionPlot is the JSON document consumed by plotting tools.
type PredictionPlot struct {
	Name   string            `json:"name"`
	Series []string          `json:"series"`
	Points []PredictionPoint `json:"points"`
}

// BuildPredictionPlot pairs input and output records by position.
// Labels concatenate the named fields, dates rendered as days.
// When sortBy is set, rows are ordered by that input field.
func BuildPredictionPlot(name string, fields []string, inputs, outputs []domain.Record, sortBy string) (*PredictionPlot, error) {
	if len(inputs) != len(outputs) {
		return nil, fmt.Errorf("plot: %d input records, %d output records", len(inputs), len(outputs))
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	if sortBy != "" {
		sort.SliceStable(order, func(a, b int) bool {
			c, ok := storage.Compare(inputs[order[a]][sortBy], inputs[order[b]][sortBy])
			return ok && c < 0
		})
	}

	plot := &PredictionPlot{
		Name:   name,
		Series: []string{"True", "Predicted"},
		Points: make([]PredictionPoint, 0, len(inputs)),
	}
	for _, i := range order {
		plot.Points = append(plot.Points, PredictionPoint{
			Label:     label(inputs[i], fields),
			Actual:    floatOrNil(inputs[i][domain.FieldValue]),
			Predicted: floatOrNil(outputs[i][domain.FieldValue]),
		})
	}
	return plot, nil
}

// WriteJSON writes the plot as indented JSON.
func (p *PredictionPlot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func label(rec domain.Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if t, ok := rec[f].(time.Time); ok {
			parts = append(parts, t.UTC().Format("2006-01-02"))
			continue
		}
		parts = append(parts, FormatValue(rec[f]))
	}
	return strings.Join(parts, " ")
}

func floatOrNil(v any) *float64 {
	f, ok := domain.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}

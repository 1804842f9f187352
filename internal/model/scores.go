package model

import (
	"fmt"
	"io"
	"math"
	"sort"

	"retail-signal-lab/internal/metrics"
)

// ScoresFileName is the fit report inside a pipeline directory.
const ScoresFileName = "scores.txt"

// FeatureWeight pairs a feature with its standardised weight.
type FeatureWeight struct {
	Feature string
	Weight  float64
}

// RankedWeights returns all weights ordered by weight DESC, feature ASC.
func (m *LinearSVR) RankedWeights() []FeatureWeight {
	out := make([]FeatureWeight, len(m.Weights))
	for i, w := range m.Weights {
		name := fmt.Sprintf("x%d", i)
		if i < len(m.Features) {
			name = m.Features[i]
		}
		out[i] = FeatureWeight{Feature: name, Weight: w}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// WriteScores writes the top and bottom n weights and, when cv is non-nil,
// the cross-validation summary.
func WriteScores(w io.Writer, m *LinearSVR, n int, cv *metrics.Summary) error {
	ranked := m.RankedWeights()
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}

	if _, err := fmt.Fprintf(w, "samples\t%d\nfeatures\t%d\n\n", m.Samples, len(ranked)); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "top %d weights\n", n); err != nil {
		return err
	}
	for _, fw := range ranked[:n] {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\n", fw.Feature, fw.Weight); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\nbottom %d weights\n", n); err != nil {
		return err
	}
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\n", ranked[i].Feature, ranked[i].Weight); err != nil {
			return err
		}
	}

	if cv == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "\ncross-validation (%d folds)\nMAE\t%s\nRMSE\t%s\nR2\t%s\n",
		len(cv.Folds), formatScore(cv.MeanMAE, cv.StddevMAE), formatScore(cv.MeanRMSE, cv.StddevRMSE),
		formatScore(cv.MeanR2, math.NaN()))
	return err
}

func formatScore(mean, stddev float64) string {
	if math.IsNaN(stddev) {
		return fmt.Sprintf("%.6f", mean)
	}
	return fmt.Sprintf("%.6f +- %.6f", mean, stddev)
}

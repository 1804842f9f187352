// Package metrics scores regression predictions and runs k-fold cross-validation.
package metrics

import (
	"errors"
	"math"
	"sort"
)

// Errors returned by scoring functions.
var (
	ErrLengthMismatch = errors.New("actual and predicted lengths differ")
	ErrNoSamples      = errors.New("no samples to score")
)

// Scores are the regression quality metrics of one prediction set.
type Scores struct {
	N        int
	MAE      float64 // mean absolute error
	RMSE     float64 // root mean squared error
	R2       float64 // coefficient of determination, 0 when actual is constant
	MedianAE float64 // median absolute error
}

// Score compares predictions against actual values.
func Score(actual, predicted []float64) (*Scores, error) {
	if len(actual) != len(predicted) {
		return nil, ErrLengthMismatch
	}
	n := len(actual)
	if n == 0 {
		return nil, ErrNoSamples
	}

	absErrors := make([]float64, n)
	sumAbs, sumSq := 0.0, 0.0
	for i := range actual {
		d := predicted[i] - actual[i]
		absErrors[i] = math.Abs(d)
		sumAbs += absErrors[i]
		sumSq += d * d
	}
	sort.Float64s(absErrors)

	return &Scores{
		N:        n,
		MAE:      sumAbs / float64(n),
		RMSE:     math.Sqrt(sumSq / float64(n)),
		R2:       computeR2(actual, sumSq),
		MedianAE: computePercentile(absErrors, 0.50),
	}, nil
}

// computeR2 returns 1 - SS_res/SS_tot.
func computeR2(actual []float64, ssRes float64) float64 {
	mean := computeMean(actual)
	ssTot := 0.0
	for _, a := range actual {
		d := a - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC; p is the fraction (0.5 = median).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

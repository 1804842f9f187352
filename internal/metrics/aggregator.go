package metrics

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidFolds is returned when k is below 2 or above the sample count.
var ErrInvalidFolds = errors.New("invalid number of folds")

// FitPredictFunc trains on the training split and predicts the test rows.
type FitPredictFunc func(ctx context.Context, trainX [][]float64, trainY []float64, testX [][]float64) ([]float64, error)

// Summary aggregates fold scores.
type Summary struct {
	Folds      []*Scores
	MeanMAE    float64
	MeanRMSE   float64
	MeanR2     float64
	StddevMAE  float64
	StddevRMSE float64
}

// Folds splits n sample indices into k contiguous folds.
// The first n%k folds get one extra sample. Order is preserved so time-ordered
// data is never shuffled across folds.
func Folds(n, k int) ([][]int, error) {
	if k < 2 || k > n {
		return nil, fmt.Errorf("%w: k=%d n=%d", ErrInvalidFolds, k, n)
	}

	folds := make([][]int, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		fold := make([]int, size)
		for i := range fold {
			fold[i] = start + i
		}
		folds[f] = fold
		start += size
	}
	return folds, nil
}

// CrossValidate runs k-fold cross-validation and aggregates the fold scores.
func CrossValidate(ctx context.Context, X [][]float64, y []float64, k int, fit FitPredictFunc) (*Summary, error) {
	if len(X) != len(y) {
		return nil, ErrLengthMismatch
	}
	folds, err := Folds(len(y), k)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for f, test := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inTest := make(map[int]bool, len(test))
		for _, i := range test {
			inTest[i] = true
		}

		var trainX, testX [][]float64
		var trainY, testY []float64
		for i := range y {
			if inTest[i] {
				testX = append(testX, X[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}

		predicted, err := fit(ctx, trainX, trainY, testX)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		scores, err := Score(testY, predicted)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		summary.Folds = append(summary.Folds, scores)
	}

	aggregate(summary)
	return summary, nil
}

func aggregate(s *Summary) {
	mae := make([]float64, len(s.Folds))
	rmse := make([]float64, len(s.Folds))
	r2 := make([]float64, len(s.Folds))
	for i, f := range s.Folds {
		mae[i], rmse[i], r2[i] = f.MAE, f.RMSE, f.R2
	}

	s.MeanMAE = computeMean(mae)
	s.MeanRMSE = computeMean(rmse)
	s.MeanR2 = computeMean(r2)
	s.StddevMAE = computeStddev(mae, s.MeanMAE)
	s.StddevRMSE = computeStddev(rmse, s.MeanRMSE)
}

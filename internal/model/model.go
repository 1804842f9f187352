// Package model holds the regression model the pipeline fits and predicts with:
// a linear support vector regressor trained by stochastic subgradient descent.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"retail-signal-lab/internal/domain"
)

// Model errors.
var (
	ErrNotFitted       = errors.New("model is not fitted")
	ErrDimension       = errors.New("feature dimension mismatch")
	ErrEmptyTraining   = errors.New("empty training set")
	ErrMissingFeature  = errors.New("record lacks numeric feature")
	ErrFeatureMismatch = errors.New("feature names differ from persisted model")
)

// Predictor maps feature rows to predictions.
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Trainer fits a predictor.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []float64) (Predictor, error)
}

// SVRParams are the hyperparameters of LinearSVR.
type SVRParams struct {
	C            float64 `json:"c" yaml:"c"`                         // inverse regularisation strength
	Epsilon      float64 `json:"epsilon" yaml:"epsilon"`             // insensitive band, in standardised target units
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"` // initial step, decays with 1/sqrt(epoch)
	Epochs       int     `json:"epochs" yaml:"epochs"`
}

// DefaultSVRParams returns the parameters used when a pipeline sets none.
func DefaultSVRParams() SVRParams {
	return SVRParams{C: 1, Epsilon: 0.1, LearningRate: 0.1, Epochs: 200}
}

func (p SVRParams) withDefaults() SVRParams {
	d := DefaultSVRParams()
	if p.C <= 0 {
		p.C = d.C
	}
	if p.Epsilon < 0 {
		p.Epsilon = d.Epsilon
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Epochs <= 0 {
		p.Epochs = d.Epochs
	}
	return p
}

// LinearSVR is a fitted epsilon-insensitive linear regressor on standardised features.
type LinearSVR struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	YMean    float64   `json:"y_mean"`
	YScale   float64   `json:"y_scale"`
	Weights  []float64 `json:"weights"` // in standardised space
	Bias     float64   `json:"bias"`
	Params   SVRParams `json:"params"`
	Samples  int       `json:"samples"`
}

// SVRTrainer implements Trainer. A non-nil Warm model seeds the weights (fit mode).
type SVRTrainer struct {
	Params   SVRParams
	Features []string
	Warm     *LinearSVR
}

// NewSVRTrainer creates a trainer for the named features.
func NewSVRTrainer(params SVRParams, features []string) *SVRTrainer {
	return &SVRTrainer{Params: params.withDefaults(), Features: features}
}

// Fit implements Trainer.
func (t *SVRTrainer) Fit(ctx context.Context, X [][]float64, y []float64) (Predictor, error) {
	return t.FitSVR(ctx, X, y)
}

// FitSVR trains and returns the concrete model.
func (t *SVRTrainer) FitSVR(ctx context.Context, X [][]float64, y []float64) (*LinearSVR, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTraining
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrDimension, len(X), len(y))
	}
	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: ragged rows", ErrDimension)
		}
	}
	if t.Features != nil && len(t.Features) != dim {
		return nil, fmt.Errorf("%w: %d names, %d columns", ErrDimension, len(t.Features), dim)
	}

	params := t.Params.withDefaults()
	m := &LinearSVR{
		Features: append([]string(nil), t.Features...),
		Params:   params,
		Samples:  len(y),
		Weights:  make([]float64, dim),
	}
	m.Mean, m.Scale = standardize(X)
	m.YMean, m.YScale = meanScale(y)

	if t.Warm != nil {
		if len(t.Warm.Weights) != dim {
			return nil, fmt.Errorf("%w: warm start has %d weights", ErrDimension, len(t.Warm.Weights))
		}
		copy(m.Weights, t.Warm.Weights)
		m.Bias = t.Warm.Bias
	}

	xs := make([][]float64, len(X))
	for i, row := range X {
		xs[i] = m.scaleRow(row)
	}
	ys := make([]float64, len(y))
	for i, v := range y {
		ys[i] = (v - m.YMean) / m.YScale
	}

	lambda := 1 / (params.C * float64(len(y)))
	for epoch := 0; epoch < params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lr := params.LearningRate / math.Sqrt(float64(epoch+1))
		for i, row := range xs {
			r := ys[i] - dot(m.Weights, row) - m.Bias
			shrink := 1 - lr*lambda
			for j := range m.Weights {
				m.Weights[j] *= shrink
			}
			if math.Abs(r) <= params.Epsilon {
				continue
			}
			sign := 1.0
			if r < 0 {
				sign = -1
			}
			for j, x := range row {
				m.Weights[j] += lr * sign * x
			}
			m.Bias += lr * sign
		}
	}

	return m, nil
}

// Predict implements Predictor.
func (m *LinearSVR) Predict(X [][]float64) ([]float64, error) {
	if m == nil || m.Weights == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Weights) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(row), len(m.Weights))
		}
		out[i] = (dot(m.Weights, m.scaleRow(row))+m.Bias)*m.YScale + m.YMean
	}
	return out, nil
}

func (m *LinearSVR) scaleRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - m.Mean[j]) / m.Scale[j]
	}
	return out
}

// FeatureMatrix extracts the named numeric fields of every record, in order.
func FeatureMatrix(records []domain.Record, features []string) ([][]float64, error) {
	X := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(features))
		for j, f := range features {
			v, ok := rec.Float(f)
			if !ok {
				return nil, fmt.Errorf("%w: record %d field %q", ErrMissingFeature, i, f)
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

// standardize returns per-column mean and population stddev (1 for constant columns).
func standardize(X [][]float64) ([]float64, []float64) {
	dim := len(X[0])
	mean := make([]float64, dim)
	scale := make([]float64, dim)
	col := make([]float64, len(X))
	for j := 0; j < dim; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean[j], scale[j] = meanScale(col)
	}
	return mean, scale
}

func meanScale(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	scale := math.Sqrt(ss / float64(len(values)))
	if scale == 0 {
		scale = 1
	}
	return mean, scale
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/metrics"
	"retail-signal-lab/internal/model"
)

// ErrMissingTarget is returned when a fit record has no numeric Value.
var ErrMissingTarget = errors.New("fit record has no numeric Value")

// Defaults of the svr module.
const (
	DefaultFolds      = 5
	DefaultTopWeights = 5
	ScoreCV           = "cv"
)

type svrParams struct {
	model.SVRParams `yaml:",inline"`
	ModelFilename   string `yaml:"model_filename"`
	Score           string `yaml:"score"` // "cv" adds k-fold scores to scores.txt
	Folds           int    `yaml:"folds"`
	TopWeights      int    `yaml:"top_weights"`
}

// SVRModule fits a linear support vector regressor on FtrSpace with targets
// from InputFeat, persists it in the pipeline directory and writes predictions
// for every InputFeat record to Output.
//
// fit-init trains from scratch, fit continues from the persisted model and
// predict only loads it.
type SVRModule struct {
	res *Resources
}

// Run implements Model.
func (m *SVRModule) Run(ctx context.Context, run *Run, spec config.ModuleSpec, features []string) error {
	p := svrParams{SVRParams: model.DefaultSVRParams(), Folds: DefaultFolds, TopWeights: DefaultTopWeights}
	if err := spec.Decode(&p); err != nil {
		return err
	}
	if p.ModelFilename == "" {
		p.ModelFilename = model.FileName
	}
	path := run.Path(p.ModelFilename)
	logger := m.res.logger().With(zap.String("model", path), zap.Stringer("mode", run.Mode))

	ftr, err := run.Store.Collection(ctx, domain.CollectionFtrSpace)
	if err != nil {
		return err
	}
	input, err := run.Store.Collection(ctx, domain.CollectionInputFeat)
	if err != nil {
		return err
	}
	if len(ftr.Records) != len(input.Records) {
		return fmt.Errorf("%w: %d feature records, %d input records", model.ErrDimension, len(ftr.Records), len(input.Records))
	}

	var svr, warm *model.LinearSVR
	switch run.Mode {
	case domain.ModeFitInit:
	case domain.ModeFit:
		warm, err = loadChecked(path, features)
	case domain.ModePredict, domain.ModePredictActive:
		svr, err = loadChecked(path, features)
	default:
		return fmt.Errorf("%w: svr cannot run in %s mode", domain.ErrInvalidMode, run.Mode)
	}
	if err != nil {
		return err
	}

	if len(features) == 0 {
		switch {
		case svr != nil:
			features = svr.Features
		case warm != nil:
			features = warm.Features
		default:
			return fmt.Errorf("%w: fit-init needs a feature list", ErrMissingParam)
		}
	}

	X, err := model.FeatureMatrix(ftr.Records, features)
	if err != nil {
		return err
	}

	if run.Mode.IsFit() {
		y, err := targets(input.Records)
		if err != nil {
			return err
		}
		svr, err = m.fit(ctx, run, p, features, warm, X, y, logger)
		if err != nil {
			return err
		}
		if err := svr.Save(path); err != nil {
			return err
		}
	}

	start := time.Now()
	predicted, err := svr.Predict(X)
	if err != nil {
		return err
	}
	m.res.Metrics.ObserveModel("predict", time.Since(start))

	if err := writeOutput(ctx, run, input, predicted); err != nil {
		return err
	}
	logger.Info("predictions written", zap.Int("records", len(predicted)))
	return nil
}

func (m *SVRModule) fit(ctx context.Context, run *Run, p svrParams, features []string, warm *model.LinearSVR, X [][]float64, y []float64, logger *zap.Logger) (*model.LinearSVR, error) {
	var cv *metrics.Summary
	if p.Score == ScoreCV {
		folds := min(p.Folds, len(y))
		if folds < 2 {
			logger.Warn("too few samples for cross-validation", zap.Int("samples", len(y)))
		} else {
			summary, err := metrics.CrossValidate(ctx, X, y, folds, func(ctx context.Context, trainX [][]float64, trainY []float64, testX [][]float64) ([]float64, error) {
				fm, err := model.NewSVRTrainer(p.SVRParams, features).FitSVR(ctx, trainX, trainY)
				if err != nil {
					return nil, err
				}
				return fm.Predict(testX)
			})
			if err != nil {
				return nil, fmt.Errorf("cross-validation: %w", err)
			}
			cv = summary
			logger.Info("cross-validation",
				zap.Int("folds", folds),
				zap.Float64("mae", summary.MeanMAE),
				zap.Float64("rmse", summary.MeanRMSE),
				zap.Float64("r2", summary.MeanR2),
			)
		}
	}

	trainer := model.NewSVRTrainer(p.SVRParams, features)
	trainer.Warm = warm

	start := time.Now()
	svr, err := trainer.FitSVR(ctx, X, y)
	if err != nil {
		return nil, err
	}
	m.res.Metrics.ObserveModel("fit", time.Since(start))
	logger.Info("model fitted", zap.Int("samples", len(y)), zap.Int("features", len(features)), zap.Bool("warm", warm != nil))

	f, err := os.Create(run.Path(model.ScoresFileName))
	if err != nil {
		return nil, fmt.Errorf("create scores file: %w", err)
	}
	defer f.Close()
	if err := model.WriteScores(f, svr, p.TopWeights, cv); err != nil {
		return nil, fmt.Errorf("write scores: %w", err)
	}
	return svr, f.Close()
}

func loadChecked(path string, features []string) (*model.LinearSVR, error) {
	svr, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := svr.CheckFeatures(features); err != nil {
			return nil, err
		}
	}
	return svr, nil
}

func targets(records []domain.Record) ([]float64, error) {
	y := make([]float64, len(records))
	for i, rec := range records {
		v, ok := rec.Float(domain.FieldValue)
		if !ok {
			return nil, fmt.Errorf("%w: record %d", ErrMissingTarget, i)
		}
		y[i] = v
	}
	return y, nil
}

// writeOutput copies the input records with Value replaced by the predictions.
func writeOutput(ctx context.Context, run *Run, input *domain.Collection, predicted []float64) error {
	fields := append([]domain.Field{}, input.Fields...)
	if !input.HasField(domain.FieldValue) {
		fields = append(fields, domain.Field{Name: domain.FieldValue, Type: domain.FieldFloat})
	}

	out := make([]domain.Record, len(input.Records))
	for i, rec := range input.Records {
		o := rec.Clone()
		o[domain.FieldValue] = predicted[i]
		out[i] = o
	}

	if err := run.Store.CreateCollection(ctx, domain.CollectionOutput, fields); err != nil {
		return err
	}
	return run.Store.Insert(ctx, domain.CollectionOutput, out)
}

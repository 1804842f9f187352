// Package modules implements the pipeline stages a specification can name:
// input extractors, feature extractors, models, outputs and transformations.
package modules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/logging"
	"retail-signal-lab/internal/merge"
	"retail-signal-lab/internal/observability"
	"retail-signal-lab/internal/storage"
)

// Module errors
var (
	ErrUnknownModule = errors.New("unknown pipeline module")
	ErrMissingParam  = errors.New("missing module parameter")
	ErrUnknownSource = errors.New("unknown record source")
	ErrNoStore       = errors.New("resource store not configured")
)

// Resources are the handles modules read from and write to.
// Stores left nil make the modules that need them fail with ErrNoStore.
type Resources struct {
	Sources   map[string]storage.RecordSource
	Intervals storage.PriceIntervalStore
	Activity  storage.ActivityStore
	Features  storage.DiscountFeatureStore
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// Source returns the named record source. An empty name selects the only
// configured source.
func (r *Resources) Source(name string) (storage.RecordSource, error) {
	if name == "" && len(r.Sources) == 1 {
		for _, src := range r.Sources {
			return src, nil
		}
	}
	src, ok := r.Sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return src, nil
}

func (r *Resources) logger() *zap.Logger {
	return logging.OrNop(r.Logger)
}

// Run is the state one pipeline execution shares with its modules.
type Run struct {
	Name  string
	Mode  domain.Mode
	Dir   string // pipeline directory
	Input config.InputSpec
	Store storage.WorkingStore

	// Features maps each merged input key to its feature record. Set by the merge.
	Features map[domain.PipelineKey]domain.Record
}

// KeyConfig returns the composite key settings of the run.
func (r *Run) KeyConfig() merge.KeyConfig {
	return merge.KeyConfig{PrimaryKey: r.Input.PrimaryKey, KeepOnlyDate: r.Input.KeepDate()}
}

// Path resolves a file name without a directory against the pipeline directory.
func (r *Run) Path(name string) string {
	if strings.ContainsRune(name, '/') || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.Dir, name)
}

// InputExtractor fills the Input collection.
type InputExtractor interface {
	ExtractInput(ctx context.Context, run *Run, spec config.ModuleSpec) error
}

// FeatureExtractor writes spec.Collection() and returns its keyed feature records.
type FeatureExtractor interface {
	ExtractFeatures(ctx context.Context, run *Run, spec config.ModuleSpec) (*merge.FeatureSet, error)
}

// Model fits and/or predicts from FtrSpace and InputFeat and fills Output.
// features is empty when the feature space comes from an earlier run.
type Model interface {
	Run(ctx context.Context, run *Run, spec config.ModuleSpec, features []string) error
}

// Output writes pipeline results outside the working store.
type Output interface {
	Write(ctx context.Context, run *Run, spec config.ModuleSpec) error
}

// Transformation is a one-off job that runs without a working store.
type Transformation interface {
	Transform(ctx context.Context, spec config.ModuleSpec) error
}

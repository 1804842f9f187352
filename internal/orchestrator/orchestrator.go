// Package orchestrator executes pipeline specifications.
// Flow: input extraction → feature extraction → merge → model → outputs
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/idhash"
	"retail-signal-lab/internal/logging"
	"retail-signal-lab/internal/merge"
	"retail-signal-lab/internal/modules"
	"retail-signal-lab/internal/observability"
	"retail-signal-lab/internal/storage"
	"retail-signal-lab/internal/storage/memory"
	"retail-signal-lab/internal/storage/sqlite"
)

// Orchestrator runs pipelines against one module registry.
type Orchestrator struct {
	registry  *modules.Registry
	runLog    storage.RunLogStore
	modelsDir string
	dataDir   string
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Registry *modules.Registry

	// Directories. ModelsDir is the default models root for Exec.
	ModelsDir string
	DataDir   string

	// Optional
	RunLog  storage.RunLogStore // RunBatch skips run log entries when nil
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
	NewID   func() string
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:  opts.Registry,
		runLog:    opts.RunLog,
		modelsDir: opts.ModelsDir,
		dataDir:   opts.DataDir,
		logger:    logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if o.registry == nil {
		o.registry = modules.NewRegistry(nil)
	}
	if o.modelsDir == "" {
		o.modelsDir = config.DefaultModelsDir
	}
	if o.dataDir == "" {
		o.dataDir = config.DefaultDataDir
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = newRunID
	}
	return o
}

// Exec runs one pipeline in mode and returns the Output records.
// override supplies InputFeat and FtrSpace in predict-active mode and is ignored otherwise.
// An empty modelsRootDir selects Options.ModelsDir.
func (o *Orchestrator) Exec(ctx context.Context, cfg *config.Pipeline, mode domain.Mode, override storage.WorkingStore, modelsRootDir string) ([]domain.Record, error) {
	start := o.now()
	records, err := o.exec(ctx, cfg, mode, override, modelsRootDir)

	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
	}
	o.metrics.RecordPipelineRun(mode.String(), status, o.now().Sub(start))
	return records, err
}

func (o *Orchestrator) exec(ctx context.Context, cfg *config.Pipeline, mode domain.Mode, override storage.WorkingStore, modelsRootDir string) ([]domain.Record, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil pipeline", config.ErrInvalidConfig)
	}
	if _, err := mode.MarshalText(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	if !mode.UsesStore() {
		log := o.logger.With(zap.String("pipeline", cfg.Label()), zap.String("mode", mode.String()))
		log.Info("pipeline started")
		return nil, o.runTransform(ctx, cfg, log)
	}

	if modelsRootDir == "" {
		modelsRootDir = o.modelsDir
	}
	dir, err := o.ResolveDir(cfg, modelsRootDir)
	if err != nil {
		return nil, err
	}
	if err := prepareDir(dir, mode); err != nil {
		return nil, err
	}

	log := o.logger.With(zap.String("pipeline", cfg.Label()), zap.String("mode", mode.String()))
	log.Info("pipeline started", zap.String("dir", dir))

	if mode == domain.ModePredictActive {
		return o.runActive(ctx, cfg, dir, override, log)
	}
	return o.runStore(ctx, cfg, mode, dir, log)
}

// ResolveDir returns the directory a pipeline's persisted state lives in.
func (o *Orchestrator) ResolveDir(cfg *config.Pipeline, modelsRootDir string) (string, error) {
	switch {
	case cfg.Dir != "":
		return cfg.Dir, nil
	case cfg.Usecase != "" && cfg.Name != "":
		return filepath.Join(o.dataDir, "usecase", cfg.Usecase, "models", cfg.Name), nil
	case cfg.Name != "" && cfg.Version != "":
		return filepath.Join(modelsRootDir, cfg.Name+"v"+cfg.Version), nil
	case cfg.ID != "":
		return filepath.Join(modelsRootDir, cfg.ID), nil
	default:
		return "", ErrMissingIdentity
	}
}

// prepareDir checks the pipeline directory exists where the mode reads from it
// and creates it for fit-init.
func prepareDir(dir string, mode domain.Mode) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrPipelineDirNotFound, dir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat pipeline dir: %w", err)
	}

	if mode != domain.ModeFitInit {
		return fmt.Errorf("%w: %s", ErrPipelineDirNotFound, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pipeline dir: %w", err)
	}
	return nil
}

// runTransform runs every transformation module in order.
func (o *Orchestrator) runTransform(ctx context.Context, cfg *config.Pipeline, log *zap.Logger) error {
	for i, spec := range cfg.Transformation {
		log.Info("Transformation", zap.Int("step", i+1), zap.String("module", spec.Module))
		t, err := o.registry.Transformation(spec.Module)
		if err != nil {
			return err
		}
		if err := t.Transform(ctx, spec); err != nil {
			return fmt.Errorf("transformation %s failed: %w", spec.Collection(), err)
		}
	}
	return nil
}

// runStore executes fit-init, fit and predict against a fresh sqlite working store.
func (o *Orchestrator) runStore(ctx context.Context, cfg *config.Pipeline, mode domain.Mode, dir string, log *zap.Logger) ([]domain.Record, error) {
	// Phase 1: Snapshot configuration
	log.Info("Phase 1: Snapshotting configuration")
	if err := snapshot(cfg, mode, dir); err != nil {
		return nil, fmt.Errorf("phase 1 (snapshot) failed: %w", err)
	}

	store, err := sqlite.Create(ctx, filepath.Join(dir, sqlite.FileName))
	if err != nil {
		return nil, fmt.Errorf("phase 1 (working store) failed: %w", err)
	}
	defer store.Close()

	run := &modules.Run{
		Name:  cfg.Label(),
		Mode:  mode,
		Dir:   dir,
		Input: cfg.Pipeline.Input,
		Store: store,
	}

	// Phase 2: Input extraction
	log.Info("Phase 2: Extracting input", zap.String("module", cfg.InputExtraction.Module))
	input, err := o.extractInput(ctx, run, *cfg.InputExtraction)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (input extraction) failed: %w", err)
	}
	log.Info("Input extracted", zap.Int("records", len(input.Records)))

	// Phase 3: Feature extraction
	log.Info("Phase 3: Extracting features", zap.Int("modules", len(cfg.Pipeline.Extraction)))
	sets, err := o.extractFeatures(ctx, run, cfg.Pipeline.Extraction)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (feature extraction) failed: %w", err)
	}

	// Phase 4: Merge
	log.Info("Phase 4: Merging features")
	features, err := o.mergeFeatures(ctx, run, input, sets, log)
	if err != nil {
		return nil, fmt.Errorf("phase 4 (merge) failed: %w", err)
	}

	// Phase 5: Model
	log.Info("Phase 5: Running model", zap.String("module", cfg.Pipeline.Model.Module))
	if err := o.runModel(ctx, run, *cfg.Pipeline.Model, features); err != nil {
		return nil, fmt.Errorf("phase 5 (model) failed: %w", err)
	}

	// Phase 6: Outputs
	log.Info("Phase 6: Writing outputs", zap.Int("modules", len(cfg.Pipeline.Output)))
	for _, spec := range cfg.Pipeline.Output {
		out, err := o.registry.Output(spec.Module)
		if err != nil {
			return nil, fmt.Errorf("phase 6 (outputs) failed: %w", err)
		}
		if err := out.Write(ctx, run, spec); err != nil {
			return nil, fmt.Errorf("phase 6 (output %s) failed: %w", spec.Collection(), err)
		}
	}

	output, err := store.Collection(ctx, domain.CollectionOutput)
	if err != nil {
		return nil, err
	}
	if n := unmatchedOutputs(output.Records, run); n > 0 {
		log.Warn("predictions without merged features", zap.Int("count", n))
	}
	log.Info("pipeline complete", zap.Int("predictions", len(output.Records)))
	return output.Records, nil
}

// unmatchedOutputs counts records whose key does not resolve in the merge mapping.
func unmatchedOutputs(records []domain.Record, run *modules.Run) int {
	cfg := run.KeyConfig()
	n := 0
	for _, rec := range records {
		if _, ok := run.Features[merge.DeriveKey(rec, cfg, 0)]; !ok {
			n++
		}
	}
	return n
}

// snapshot writes the effective specification to pipeline-<mode>.yaml.
// Named pipelines without an id get a derived one.
func snapshot(cfg *config.Pipeline, mode domain.Mode, dir string) error {
	c := *cfg
	c.Dir = dir
	c.Mode = mode.String()
	if c.ID == "" && c.Name != "" {
		c.ID = idhash.ComputePipelineID(c.Usecase, c.Name, c.Version)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "pipeline-"+mode.String()+".yaml"), data, 0o644)
}

func (o *Orchestrator) extractInput(ctx context.Context, run *modules.Run, spec config.ModuleSpec) (*domain.Collection, error) {
	ext, err := o.registry.InputExtractor(spec.Module)
	if err != nil {
		return nil, err
	}
	if err := ext.ExtractInput(ctx, run, spec); err != nil {
		return nil, err
	}

	input, err := run.Store.Collection(ctx, domain.CollectionInput)
	if err != nil {
		return nil, err
	}
	if run.Mode.IsFit() && !input.HasField(domain.FieldValue) {
		return nil, ErrMissingValueField
	}
	if len(input.Records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCollection, domain.CollectionInput)
	}
	return input, nil
}

func (o *Orchestrator) extractFeatures(ctx context.Context, run *modules.Run, specs []config.ModuleSpec) ([]merge.FeatureSet, error) {
	sets := make([]merge.FeatureSet, 0, len(specs))
	for _, spec := range specs {
		ext, err := o.registry.FeatureExtractor(spec.Module)
		if err != nil {
			return nil, err
		}
		set, err := ext.ExtractFeatures(ctx, run, spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Collection(), err)
		}
		sets = append(sets, *set)
	}
	return sets, nil
}

// mergeFeatures writes FtrSpace and InputFeat and returns the feature field order.
func (o *Orchestrator) mergeFeatures(ctx context.Context, run *modules.Run, input *domain.Collection, sets []merge.FeatureSet, log *zap.Logger) ([]string, error) {
	result, err := merge.Merge(input.Records, sets, run.KeyConfig())
	if result != nil {
		o.metrics.RecordMerge(len(result.FtrSpace), result.Skipped)
		for name, misses := range result.Misses {
			if misses > 0 {
				log.Warn("feature lookups missed", zap.String("collection", name), zap.Int("misses", misses))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	run.Features = result.Mapping
	log.Info("Features merged",
		zap.Int("records", len(result.FtrSpace)),
		zap.Int("skipped", result.Skipped),
		zap.Int("keys", len(result.Mapping)))

	ftrFields, err := featureSchema(ctx, run.Store, sets, result.FeatureFields)
	if err != nil {
		return nil, err
	}
	if err := writeCollection(ctx, run.Store, domain.CollectionFtrSpace, ftrFields, result.FtrSpace); err != nil {
		return nil, err
	}
	if err := writeCollection(ctx, run.Store, domain.CollectionInputFeat, input.Fields, result.InputFeat); err != nil {
		return nil, err
	}
	return result.FeatureFields, nil
}

// featureSchema looks up each merged feature's type in the collection that produced it.
func featureSchema(ctx context.Context, store storage.WorkingStore, sets []merge.FeatureSet, names []string) ([]domain.Field, error) {
	byName := make(map[string]domain.Field)
	for _, set := range sets {
		fields, err := store.Fields(ctx, set.Name)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			byName[f.Name] = f
		}
	}

	out := make([]domain.Field, len(names))
	for i, name := range names {
		f, ok := byName[name]
		if !ok {
			f = domain.Field{Name: name, Type: domain.FieldFloat}
		}
		f.Nullable = false
		out[i] = f
	}
	return out, nil
}

func writeCollection(ctx context.Context, store storage.WorkingStore, name string, fields []domain.Field, records []domain.Record) error {
	if err := store.CreateCollection(ctx, name, fields); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := store.Insert(ctx, name, records); err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) runModel(ctx context.Context, run *modules.Run, spec config.ModuleSpec, features []string) error {
	m, err := o.registry.Model(spec.Module)
	if err != nil {
		return err
	}
	return m.Run(ctx, run, spec, features)
}

// runActive predicts for the override's feature space with the persisted model.
func (o *Orchestrator) runActive(ctx context.Context, cfg *config.Pipeline, dir string, override storage.WorkingStore, log *zap.Logger) ([]domain.Record, error) {
	if override == nil {
		return nil, ErrNoOverride
	}

	// Phase 1: Assemble working store
	log.Info("Phase 1: Assembling working store")
	persisted, err := sqlite.OpenReadOnly(ctx, filepath.Join(dir, sqlite.FileName))
	if err != nil {
		return nil, fmt.Errorf("phase 1 (open store) failed: %w", err)
	}
	defer persisted.Close()

	store := memory.NewWorkingStore()
	defer store.Close()

	if err := assemble(ctx, store, persisted, override); err != nil {
		return nil, fmt.Errorf("phase 1 (assemble store) failed: %w", err)
	}

	run := &modules.Run{
		Name:  cfg.Label(),
		Mode:  domain.ModePredict,
		Dir:   dir,
		Input: cfg.Pipeline.Input,
		Store: store,
	}

	// Phase 2: Model
	log.Info("Phase 2: Running model", zap.String("module", cfg.Pipeline.Model.Module))
	if err := o.runModel(ctx, run, *cfg.Pipeline.Model, nil); err != nil {
		return nil, fmt.Errorf("phase 2 (model) failed: %w", err)
	}

	output, err := store.Collection(ctx, domain.CollectionOutput)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline complete", zap.Int("predictions", len(output.Records)))
	return output.Records, nil
}

// assemble copies InputFeat and FtrSpace from override and every other
// collection except Output from persisted.
func assemble(ctx context.Context, dst storage.WorkingStore, persisted, override storage.WorkingStore) error {
	for _, name := range []string{domain.CollectionInputFeat, domain.CollectionFtrSpace} {
		if err := copyCollection(ctx, dst, override, name); err != nil {
			return err
		}
	}

	names, err := persisted.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		switch name {
		case domain.CollectionInputFeat, domain.CollectionFtrSpace, domain.CollectionOutput:
			continue
		}
		if err := copyCollection(ctx, dst, persisted, name); err != nil {
			return err
		}
	}
	return nil
}

func copyCollection(ctx context.Context, dst, src storage.WorkingStore, name string) error {
	c, err := src.Collection(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return writeCollection(ctx, dst, name, c.Fields, c.Records)
}

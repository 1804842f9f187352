package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/idhash"
	"retail-signal-lab/internal/merge"
	"retail-signal-lab/internal/modules"
	"retail-signal-lab/internal/storage"
	"retail-signal-lab/internal/storage/memory"
	"retail-signal-lab/internal/storage/sqlite"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// shopSource holds 10 days of sales (Units = 2*Temp + 1), an 11th day
// without units, and 10 days of weather.
func shopSource() *memory.RecordSource {
	var sales, weather []domain.Record
	for i := 0; i < 10; i++ {
		d := day0.AddDate(0, 0, i)
		sales = append(sales, domain.Record{"Date": d.Add(9 * time.Hour), "Units": 2*float64(i) + 1})
		weather = append(weather, domain.Record{"Date": d, "Temp": float64(i), "Station": "st"})
	}
	sales = append(sales, domain.Record{"Date": day0.AddDate(0, 0, 10).Add(9 * time.Hour), "Units": nil})

	src := memory.NewRecordSource()
	src.Load("Sales", []domain.Field{
		{Name: "Date", Type: domain.FieldDatetime},
		{Name: "Units", Type: domain.FieldFloat, Nullable: true},
	}, sales)
	src.Load("Weather", []domain.Field{
		{Name: "Date", Type: domain.FieldDatetime},
		{Name: "Temp", Type: domain.FieldFloat},
		{Name: "Station", Type: domain.FieldString},
	}, weather)
	return src
}

func salesPipeline(dir string) *config.Pipeline {
	return &config.Pipeline{
		Name:    "sales",
		Version: "1",
		Dir:     dir,
		InputExtraction: &config.ModuleSpec{
			Module: modules.GenericInputExtractor,
			Params: map[string]any{"input_store": "Sales", "target_var": "Units"},
		},
		Pipeline: config.Stages{
			Input: config.InputSpec{PrimaryKey: []string{"Date"}},
			Extraction: []config.ModuleSpec{{
				Module: modules.GenericFeatureSelector,
				Name:   "weather",
				Params: map[string]any{"input_store": "Weather", "features": []any{"^Temp$"}},
			}},
			Model: &config.ModuleSpec{
				Module: modules.SVR,
				Params: map[string]any{"c": 100, "epsilon": 0.01, "epochs": 300},
			},
			Output: config.OutputList{{
				Module: modules.OutputToTSV,
				Params: map[string]any{"output_file": "out.tsv"},
			}},
		},
	}
}

func newTestOrchestrator(t *testing.T, runLog storage.RunLogStore) *Orchestrator {
	t.Helper()
	reg := modules.NewRegistry(&modules.Resources{
		Sources: map[string]storage.RecordSource{"shop": shopSource()},
	})
	return New(Options{
		Registry:  reg,
		ModelsDir: t.TempDir(),
		DataDir:   t.TempDir(),
		RunLog:    runLog,
	})
}

func TestResolveDir(t *testing.T) {
	o := New(Options{DataDir: "/data"})

	tests := []struct {
		name string
		cfg  config.Pipeline
		want string
	}{
		{"explicit dir", config.Pipeline{Dir: "/tmp/p", Name: "n", Version: "1"}, "/tmp/p"},
		{"usecase", config.Pipeline{Usecase: "retail", Name: "n", Version: "1"}, "/data/usecase/retail/models/n"},
		{"name and version", config.Pipeline{Name: "n", Version: "2"}, "/models/nv2"},
		{"id", config.Pipeline{ID: "abc"}, "/models/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.ResolveDir(&tt.cfg, "/models")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := o.ResolveDir(&config.Pipeline{Name: "n"}, "/models")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestExec_FitInitThenPredict(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, nil)
	dir := filepath.Join(t.TempDir(), "sales")
	cfg := salesPipeline(dir)

	records, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
	require.NoError(t, err)
	require.Len(t, records, 10)
	assert.InDelta(t, 19.0, records[9]["Value"].(float64), 1.5)

	assert.FileExists(t, filepath.Join(dir, "pipeline-fit-init.yaml"))
	assert.FileExists(t, filepath.Join(dir, sqlite.FileName))
	assert.FileExists(t, filepath.Join(dir, "out.tsv"))

	snap, err := config.LoadPipeline(filepath.Join(dir, "pipeline-fit-init.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "fit-init", snap.Mode)
	assert.Equal(t, dir, snap.Dir)
	assert.Equal(t, idhash.ComputePipelineID("", "sales", "1"), snap.ID)

	store, err := sqlite.OpenReadOnly(ctx, filepath.Join(dir, sqlite.FileName))
	require.NoError(t, err)
	names, err := store.Collections(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.ElementsMatch(t, []string{"Input", "weather", "FtrSpace", "InputFeat", "Output"}, names)

	// day 11 has no weather and is skipped by the merge
	records, err = o.Exec(ctx, cfg, domain.ModePredict, nil, "")
	require.NoError(t, err)
	require.Len(t, records, 10)
	assert.FileExists(t, filepath.Join(dir, "pipeline-predict.yaml"))

	tsv, err := os.ReadFile(filepath.Join(dir, "out.tsv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tsv), "Date\t"))
}

func TestExec_Errors(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, nil)

	t.Run("missing dir in predict", func(t *testing.T) {
		cfg := salesPipeline(filepath.Join(t.TempDir(), "absent"))
		_, err := o.Exec(ctx, cfg, domain.ModePredict, nil, "")
		assert.ErrorIs(t, err, ErrPipelineDirNotFound)
	})

	t.Run("missing identity", func(t *testing.T) {
		cfg := salesPipeline("")
		cfg.Name = ""
		_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
		assert.ErrorIs(t, err, ErrMissingIdentity)
	})

	t.Run("fit without target", func(t *testing.T) {
		cfg := salesPipeline(t.TempDir())
		cfg.InputExtraction.Params = map[string]any{"input_store": "Sales", "target_var": "Revenue"}
		_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
		assert.ErrorIs(t, err, ErrMissingValueField)
	})

	t.Run("no merged records", func(t *testing.T) {
		cfg := salesPipeline(t.TempDir())
		cfg.Pipeline.Extraction[0].Params["forecast_offset"] = 30
		_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
		assert.True(t, errors.Is(err, merge.ErrEmptyResult), "got %v", err)
	})

	t.Run("invalid pipeline", func(t *testing.T) {
		cfg := salesPipeline(t.TempDir())
		cfg.Pipeline.Model = nil
		_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("unknown module", func(t *testing.T) {
		cfg := salesPipeline(t.TempDir())
		cfg.Pipeline.Model.Module = "random_forest"
		_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
		assert.ErrorIs(t, err, modules.ErrUnknownModule)
	})
}

func TestExec_PredictActive(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, nil)
	dir := t.TempDir()
	cfg := salesPipeline(dir)

	_, err := o.Exec(ctx, cfg, domain.ModeFitInit, nil, "")
	require.NoError(t, err)

	_, err = o.Exec(ctx, cfg, domain.ModePredictActive, nil, "")
	assert.ErrorIs(t, err, ErrNoOverride)

	override := memory.NewWorkingStore()
	require.NoError(t, override.CreateCollection(ctx, domain.CollectionInputFeat, []domain.Field{{Name: "Date", Type: domain.FieldDatetime}}))
	require.NoError(t, override.CreateCollection(ctx, domain.CollectionFtrSpace, []domain.Field{{Name: "Temp", Type: domain.FieldFloat}}))
	require.NoError(t, override.Insert(ctx, domain.CollectionInputFeat, []domain.Record{
		{"Date": day0.AddDate(0, 0, 20)},
		{"Date": day0.AddDate(0, 0, 21)},
	}))
	require.NoError(t, override.Insert(ctx, domain.CollectionFtrSpace, []domain.Record{
		{"Temp": 0.0},
		{"Temp": 9.0},
	}))

	records, err := o.Exec(ctx, cfg, domain.ModePredictActive, override, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, 1.0, records[0]["Value"].(float64), 1.5)
	assert.InDelta(t, 19.0, records[1]["Value"].(float64), 1.5)

	// the persisted store is left untouched
	store, err := sqlite.OpenReadOnly(ctx, filepath.Join(dir, sqlite.FileName))
	require.NoError(t, err)
	defer store.Close()
	out, err := store.Collection(ctx, domain.CollectionOutput)
	require.NoError(t, err)
	assert.Len(t, out.Records, 10)
}

func TestAssemble_Duplicate(t *testing.T) {
	ctx := context.Background()
	dst := memory.NewWorkingStore()
	require.NoError(t, dst.CreateCollection(ctx, "weather", nil))

	persisted := memory.NewWorkingStore()
	override := memory.NewWorkingStore()
	for _, name := range []string{domain.CollectionInputFeat, domain.CollectionFtrSpace} {
		require.NoError(t, override.CreateCollection(ctx, name, nil))
	}
	require.NoError(t, persisted.CreateCollection(ctx, "weather", nil))

	err := assemble(ctx, dst, persisted, override)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestExec_Transform(t *testing.T) {
	ctx := context.Background()
	intervals := memory.NewPriceIntervalStore()
	features := memory.NewDiscountFeatureStore()
	require.NoError(t, intervals.InsertBulk(ctx, []*domain.PriceInterval{
		{SellerID: "a", ProductID: "p1", Price: 100, Start: day0, End: day0.AddDate(0, 0, 2)},
		{SellerID: "a", ProductID: "p1", Price: 80, Start: day0.AddDate(0, 0, 2), End: day0.AddDate(0, 0, 5)},
		{SellerID: "b", ProductID: "p1", Price: 90, Start: day0, End: day0.AddDate(0, 0, 5)},
	}))

	activity := memory.NewActivityStore()
	var points []*domain.ActivityPoint
	for i := 0; i < 5; i++ {
		points = append(points, &domain.ActivityPoint{SellerID: "a", ProductID: "p1", Timestamp: day0.AddDate(0, 0, i).Add(12 * time.Hour), Value: float64(10 + 5*i)})
	}
	require.NoError(t, activity.InsertBulk(ctx, points))

	o := New(Options{Registry: modules.NewRegistry(&modules.Resources{
		Intervals: intervals,
		Activity:  activity,
		Features:  features,
	})})

	cfg := &config.Pipeline{
		ID:             "discounts",
		Transformation: []config.ModuleSpec{{Module: modules.DiscountFeatures}},
	}
	records, err := o.Exec(ctx, cfg, domain.ModeTransform, nil, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, records)

	stored, err := features.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()
	runLog := memory.NewRunLogStore()
	o := newTestOrchestrator(t, runLog)

	good := salesPipeline(t.TempDir())
	good.Mode = "fit-init"
	bad := salesPipeline(filepath.Join(t.TempDir(), "absent"))
	bad.Name = "broken"
	bad.Mode = "predict"

	result := o.RunBatch(ctx, []*config.Pipeline{bad, good}, 0)
	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "salesv1", result.Succeeded[0].Pipeline)
	assert.Equal(t, 10, result.Succeeded[0].Records)
	assert.Equal(t, domain.ModeFitInit, result.Succeeded[0].Mode)
	assert.ErrorIs(t, result.Failed[0].Err, ErrPipelineDirNotFound)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "brokenv1: "))

	entries, err := runLog.GetByPipeline(ctx, "brokenv1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LogTypeError, entries[0].Type)
	assert.Equal(t, "predict", entries[0].Mode)
	assert.NotEmpty(t, entries[0].Extended)

	entries, err = runLog.GetByPipeline(ctx, "salesv1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LogTypeInfo, entries[0].Type)
	assert.NotEqual(t, result.Succeeded[0].RunID, result.Failed[0].RunID)
}

func TestRunBatch_InvalidMode(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	cfg := salesPipeline(t.TempDir())
	cfg.Mode = "train"

	result := o.RunBatch(context.Background(), []*config.Pipeline{cfg}, 0)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0].Err, domain.ErrInvalidMode)
}

func TestMergeFeatures_MappingCoversOutputs(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, nil)
	store := memory.NewWorkingStore()
	run := &modules.Run{
		Name:  "sales",
		Mode:  domain.ModeFit,
		Dir:   t.TempDir(),
		Input: config.InputSpec{PrimaryKey: []string{"Date"}},
		Store: store,
	}

	input := &domain.Collection{
		Name: domain.CollectionInput,
		Fields: []domain.Field{
			{Name: "Date", Type: domain.FieldDatetime},
			{Name: "Value", Type: domain.FieldFloat},
		},
		Records: []domain.Record{
			{"Date": day0, "Value": 1.0},
			{"Date": day0.AddDate(0, 0, 1), "Value": 3.0},
			{"Date": day0.AddDate(0, 0, 2), "Value": 5.0},
		},
	}
	require.NoError(t, store.CreateCollection(ctx, "weather", []domain.Field{
		{Name: "Date", Type: domain.FieldDatetime},
		{Name: "Temp", Type: domain.FieldFloat},
	}))
	sets := []merge.FeatureSet{{
		Name:   "weather",
		Fields: []string{"Temp"},
		Records: []domain.Record{
			{"Date": day0, "Temp": 0.0},
			{"Date": day0.AddDate(0, 0, 1), "Temp": 1.0},
		},
	}}

	features, err := o.mergeFeatures(ctx, run, input, sets, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"Temp"}, features)

	// day 3 has no weather, so only two keys survive
	require.Len(t, run.Features, 2)
	assert.Equal(t, 1.0, run.Features[merge.DeriveKey(input.Records[1], run.KeyConfig(), 0)]["Temp"])

	outputs := []domain.Record{
		{"Date": day0, "Value": 1.1},
		{"Date": day0.AddDate(0, 0, 1), "Value": 2.9},
	}
	assert.Equal(t, 0, unmatchedOutputs(outputs, run))
	assert.Equal(t, 1, unmatchedOutputs(append(outputs, domain.Record{"Date": day0.AddDate(0, 0, 2)}), run))
}

package modules

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/model"
	"retail-signal-lab/internal/storage"
	"retail-signal-lab/internal/storage/memory"
	"retail-signal-lab/internal/storage/sqlite"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var salesFields = []domain.Field{
	{Name: "Date", Type: domain.FieldDatetime},
	{Name: "Store", Type: domain.FieldString},
	{Name: "Units", Type: domain.FieldFloat, Nullable: true},
	{Name: "Note", Type: domain.FieldString},
}

var weatherFields = []domain.Field{
	{Name: "Date", Type: domain.FieldDatetime},
	{Name: "Temp", Type: domain.FieldFloat},
	{Name: "TempMax", Type: domain.FieldFloat},
	{Name: "Rain", Type: domain.FieldFloat},
	{Name: "Station", Type: domain.FieldString},
	{Name: "Sunrise", Type: domain.FieldDatetime},
}

// testSource holds 10 days of sales (Units = 2*Temp + 1) and weather.
func testSource() *memory.RecordSource {
	var sales, weather []domain.Record
	for i := 0; i < 10; i++ {
		d := day0.AddDate(0, 0, i)
		temp := float64(i)
		sales = append(sales, domain.Record{"Date": d.Add(9 * time.Hour), "Store": "s1", "Units": 2*temp + 1, "Note": "n"})
		weather = append(weather, domain.Record{
			"Date": d, "Temp": temp, "TempMax": temp + 3, "Rain": 0.5,
			"Station": "st", "Sunrise": d.Add(6 * time.Hour),
		})
	}
	sales = append(sales, domain.Record{"Date": day0.AddDate(0, 0, 10), "Store": "s1", "Units": nil, "Note": "n"})

	src := memory.NewRecordSource()
	src.Load("Sales", salesFields, sales)
	src.Load("Weather", weatherFields, weather)
	return src
}

func newTestRun(t *testing.T, mode domain.Mode) *Run {
	t.Helper()
	return &Run{
		Name:  "sales",
		Mode:  mode,
		Dir:   t.TempDir(),
		Input: config.InputSpec{PrimaryKey: []string{"Date"}},
		Store: memory.NewWorkingStore(),
	}
}

func spec(module string, params map[string]any) config.ModuleSpec {
	return config.ModuleSpec{Module: module, Params: params}
}

func TestRegistry_UnknownModule(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.InputExtractor("csv_reader")
	assert.ErrorIs(t, err, ErrUnknownModule)
	_, err = reg.FeatureExtractor("weather_builder")
	assert.ErrorIs(t, err, ErrUnknownModule)
	_, err = reg.Model("random_forest")
	assert.ErrorIs(t, err, ErrUnknownModule)
	_, err = reg.Output("plotly")
	assert.ErrorIs(t, err, ErrUnknownModule)
	_, err = reg.Transformation("keyword_clusters")
	assert.ErrorIs(t, err, ErrUnknownModule)

	m, err := reg.Model(SVR)
	require.NoError(t, err)
	assert.IsType(t, &SVRModule{}, m)
}

func TestInputExtractor(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(&Resources{Sources: map[string]storage.RecordSource{"shop": testSource()}})
	ext, err := reg.InputExtractor(GenericInputExtractor)
	require.NoError(t, err)

	t.Run("fit skips null targets", func(t *testing.T) {
		run := newTestRun(t, domain.ModeFitInit)
		require.NoError(t, ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{
			"input_store": "Sales", "target_var": "Units",
		})))

		c, err := run.Store.Collection(ctx, domain.CollectionInput)
		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Value"}, c.FieldNames())
		require.Len(t, c.Records, 10)
		assert.Equal(t, 1.0, c.Records[0]["Value"])
		assert.NotContains(t, c.Records[0], "Units")
	})

	t.Run("predict keeps null targets", func(t *testing.T) {
		run := newTestRun(t, domain.ModePredict)
		require.NoError(t, ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{
			"source": "shop", "input_store": "Sales", "target_var": "Units",
		})))
		c, err := run.Store.Collection(ctx, domain.CollectionInput)
		require.NoError(t, err)
		assert.Len(t, c.Records, 11)
		assert.Nil(t, c.Records[10]["Value"])
		assert.True(t, c.Fields[1].Nullable)
	})

	t.Run("two thresholds drop the middle class", func(t *testing.T) {
		run := newTestRun(t, domain.ModeFit)
		require.NoError(t, ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{
			"input_store": "Sales", "target_var": "Units", "thresh": []any{5, 15},
		})))
		c, err := run.Store.Collection(ctx, domain.CollectionInput)
		require.NoError(t, err)
		// Units 1,3,5 -> -1; 7..13 dropped; 15,17,19 -> 1
		require.Len(t, c.Records, 6)
		assert.Equal(t, -1.0, c.Records[0]["Value"])
		assert.Equal(t, 1.0, c.Records[5]["Value"])
	})

	t.Run("filters", func(t *testing.T) {
		run := newTestRun(t, domain.ModeFit)
		require.NoError(t, ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{
			"input_store": "Sales", "target_var": "Units",
			"filters": []any{map[string]any{"field": "Date", "op": "lt", "value": "2024-01-03"}},
		})))
		c, err := run.Store.Collection(ctx, domain.CollectionInput)
		require.NoError(t, err)
		assert.Len(t, c.Records, 2)
	})

	t.Run("errors", func(t *testing.T) {
		run := newTestRun(t, domain.ModeFit)
		err := ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{"input_store": "Sales"}))
		assert.ErrorIs(t, err, ErrMissingParam)

		err = ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{"target_var": "Units"}))
		assert.ErrorIs(t, err, ErrMissingParam)

		err = ext.ExtractInput(ctx, run, spec(GenericInputExtractor, map[string]any{
			"source": "warehouse", "input_store": "Sales", "target_var": "Units",
		}))
		assert.ErrorIs(t, err, ErrUnknownSource)
	})
}

func TestFeatureSelector(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(&Resources{Sources: map[string]storage.RecordSource{"shop": testSource()}})
	ext, err := reg.FeatureExtractor(GenericFeatureSelector)
	require.NoError(t, err)

	run := newTestRun(t, domain.ModeFit)
	set, err := ext.ExtractFeatures(ctx, run, spec(GenericFeatureSelector, map[string]any{
		"input_store":     "Weather",
		"features":        []any{"^Temp", "Sun", "Station"},
		"not_features":    []any{"Max$"},
		"forecast_offset": 1,
	}))
	require.NoError(t, err)

	assert.Equal(t, GenericFeatureSelector, set.Name)
	assert.Equal(t, []string{"Temp"}, set.Fields)
	assert.Equal(t, 1, set.ForecastOffset)
	require.Len(t, set.Records, 10)
	assert.Contains(t, set.Records[0], "Date")

	c, err := run.Store.Collection(ctx, GenericFeatureSelector)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Temp"}, c.FieldNames())

	_, err = ext.ExtractFeatures(ctx, newTestRun(t, domain.ModeFit), spec(GenericFeatureSelector, map[string]any{
		"input_store": "Weather", "features": []any{"Humidity"},
	}))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = ext.ExtractFeatures(ctx, newTestRun(t, domain.ModeFit), spec(GenericFeatureSelector, map[string]any{
		"input_store": "Weather", "features": []any{"("},
	}))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func intPtr(v int) *int { return &v }

func TestDiscountExtractor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDiscountFeatureStore()
	require.NoError(t, store.InsertBulk(ctx, []*domain.DiscountFeature{
		{EventID: "e1", ProductID: "p1", SellerID: "a", EventDate: day0, Price: 100, Discount: 20, DiffAvg: 0.5, LenDisc: 3, RankDisc: intPtr(1)},
		{EventID: "e2", ProductID: "p2", SellerID: "a", EventDate: day0.AddDate(0, 0, 1), Price: 50, Discount: 10, DiffAvg: 0.1, LenDisc: 2},
	}))

	reg := NewRegistry(&Resources{Features: store})
	ext, err := reg.FeatureExtractor(DiscountFeatureExtractor)
	require.NoError(t, err)

	run := newTestRun(t, domain.ModeFit)
	run.Input.PrimaryKey = []string{"Date", "ProductID"}
	set, err := ext.ExtractFeatures(ctx, run, config.ModuleSpec{Module: DiscountFeatureExtractor, Name: "discounts"})
	require.NoError(t, err)
	assert.Equal(t, "discounts", set.Name)
	assert.Equal(t, []string{"Price", "Discount", "DiffAvg", "LenDisc"}, set.Fields)
	require.Len(t, set.Records, 2)
	assert.Equal(t, "p1", set.Records[0]["ProductID"])

	run = newTestRun(t, domain.ModeFit)
	set, err = ext.ExtractFeatures(ctx, run, spec(DiscountFeatureExtractor, map[string]any{
		"product": "p1", "include_rank": true, "features": []any{"Rank"},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"RankDisc", "RankGain", "RankAvg"}, set.Fields)
	require.Len(t, set.Records, 1)

	_, err = NewRegistry(nil).Resources().Source("x")
	assert.ErrorIs(t, err, ErrUnknownSource)
	ext, _ = NewRegistry(nil).FeatureExtractor(DiscountFeatureExtractor)
	_, err = ext.ExtractFeatures(ctx, newTestRun(t, domain.ModeFit), spec(DiscountFeatureExtractor, nil))
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestDiscountExtractor_NonFiniteDiffIntoWorkingStore(t *testing.T) {
	ctx := context.Background()
	features := memory.NewDiscountFeatureStore()
	require.NoError(t, features.InsertBulk(ctx, []*domain.DiscountFeature{
		{EventID: "e1", ProductID: "p1", SellerID: "a", EventDate: day0, Price: 100, Discount: 20, DiffAvg: math.Inf(1), LenDisc: 3},
		{EventID: "e2", ProductID: "p1", SellerID: "a", EventDate: day0.AddDate(0, 0, 1), Price: 90, Discount: 10, DiffAvg: math.NaN(), LenDisc: 1},
	}))

	dir := t.TempDir()
	ws, err := sqlite.Create(ctx, filepath.Join(dir, sqlite.FileName))
	require.NoError(t, err)
	defer ws.Close()

	run := newTestRun(t, domain.ModeFitInit)
	run.Dir = dir
	run.Store = ws

	ext, err := NewRegistry(&Resources{Features: features}).FeatureExtractor(DiscountFeatureExtractor)
	require.NoError(t, err)
	set, err := ext.ExtractFeatures(ctx, run, spec(DiscountFeatureExtractor, map[string]any{"features": []any{"^DiffAvg$"}}))
	require.NoError(t, err)
	require.Len(t, set.Records, 2)

	c, err := ws.Collection(ctx, DiscountFeatureExtractor)
	require.NoError(t, err)
	require.Len(t, c.Records, 2)
	assert.True(t, math.IsInf(c.Records[0]["DiffAvg"].(float64), 1))
	assert.True(t, math.IsNaN(c.Records[1]["DiffAvg"].(float64)))
}

// seedFeatureSpace fills InputFeat and FtrSpace with y = 2x + 1 over n days.
func seedFeatureSpace(t *testing.T, run *Run, n int, withValue bool) {
	t.Helper()
	ctx := context.Background()

	inFields := []domain.Field{{Name: "Date", Type: domain.FieldDatetime}}
	if withValue {
		inFields = append(inFields, domain.Field{Name: "Value", Type: domain.FieldFloat})
	}
	require.NoError(t, run.Store.CreateCollection(ctx, domain.CollectionInputFeat, inFields))
	require.NoError(t, run.Store.CreateCollection(ctx, domain.CollectionFtrSpace, []domain.Field{{Name: "x", Type: domain.FieldFloat}}))

	var inputs, ftrs []domain.Record
	for i := 0; i < n; i++ {
		in := domain.Record{"Date": day0.AddDate(0, 0, i)}
		if withValue {
			in["Value"] = 2*float64(i) + 1
		}
		inputs = append(inputs, in)
		ftrs = append(ftrs, domain.Record{"x": float64(i)})
	}
	require.NoError(t, run.Store.Insert(ctx, domain.CollectionInputFeat, inputs))
	require.NoError(t, run.Store.Insert(ctx, domain.CollectionFtrSpace, ftrs))
}

func TestSVRModule_FitThenPredict(t *testing.T) {
	ctx := context.Background()
	m := &SVRModule{res: &Resources{}}
	modelSpec := spec(SVR, map[string]any{"c": 100, "epsilon": 0.01, "epochs": 300, "score": "cv", "folds": 3})

	fitRun := newTestRun(t, domain.ModeFitInit)
	seedFeatureSpace(t, fitRun, 10, true)
	require.NoError(t, m.Run(ctx, fitRun, modelSpec, []string{"x"}))

	assert.FileExists(t, filepath.Join(fitRun.Dir, model.FileName))
	scores, err := os.ReadFile(filepath.Join(fitRun.Dir, model.ScoresFileName))
	require.NoError(t, err)
	assert.Contains(t, string(scores), "MAE")

	out, err := fitRun.Store.Collection(ctx, domain.CollectionOutput)
	require.NoError(t, err)
	require.Len(t, out.Records, 10)
	assert.Equal(t, []string{"Date", "Value"}, out.FieldNames())
	assert.InDelta(t, 19.0, out.Records[9]["Value"].(float64), 1.0)

	// predict in the same directory, features taken from the persisted model
	predictRun := newTestRun(t, domain.ModePredict)
	predictRun.Dir = fitRun.Dir
	seedFeatureSpace(t, predictRun, 3, false)
	require.NoError(t, m.Run(ctx, predictRun, spec(SVR, nil), nil))

	out, err = predictRun.Store.Collection(ctx, domain.CollectionOutput)
	require.NoError(t, err)
	require.Len(t, out.Records, 3)
	assert.Equal(t, []string{"Date", "Value"}, out.FieldNames())
	assert.InDelta(t, 1.0, out.Records[0]["Value"].(float64), 1.0)

	// fit continues from the persisted model
	refitRun := newTestRun(t, domain.ModeFit)
	refitRun.Dir = fitRun.Dir
	seedFeatureSpace(t, refitRun, 10, true)
	require.NoError(t, m.Run(ctx, refitRun, spec(SVR, map[string]any{"epochs": 5}), []string{"x"}))

	mismatch := newTestRun(t, domain.ModePredict)
	mismatch.Dir = fitRun.Dir
	seedFeatureSpace(t, mismatch, 3, false)
	assert.ErrorIs(t, m.Run(ctx, mismatch, spec(SVR, nil), []string{"y"}), model.ErrFeatureMismatch)
}

func TestSVRModule_Errors(t *testing.T) {
	ctx := context.Background()
	m := &SVRModule{res: &Resources{}}

	run := newTestRun(t, domain.ModePredict)
	seedFeatureSpace(t, run, 3, false)
	assert.ErrorIs(t, m.Run(ctx, run, spec(SVR, nil), []string{"x"}), model.ErrNotFitted)

	run = newTestRun(t, domain.ModeFitInit)
	seedFeatureSpace(t, run, 3, false)
	assert.ErrorIs(t, m.Run(ctx, run, spec(SVR, nil), []string{"x"}), ErrMissingTarget)

	run = newTestRun(t, domain.ModeFitInit)
	seedFeatureSpace(t, run, 3, true)
	assert.ErrorIs(t, m.Run(ctx, run, spec(SVR, nil), nil), ErrMissingParam)
}

func seedOutput(t *testing.T, run *Run) {
	t.Helper()
	ctx := context.Background()
	seedFeatureSpace(t, run, 2, true)
	require.NoError(t, run.Store.CreateCollection(ctx, domain.CollectionOutput, []domain.Field{
		{Name: "Date", Type: domain.FieldDatetime},
		{Name: "Value", Type: domain.FieldFloat},
	}))
	require.NoError(t, run.Store.Insert(ctx, domain.CollectionOutput, []domain.Record{
		{"Date": day0, "Value": 1.5},
		{"Date": day0.AddDate(0, 0, 1), "Value": 2.5},
	}))
}

func TestTSVOutput(t *testing.T) {
	ctx := context.Background()
	m := &TSVOutputModule{res: &Resources{}}

	run := newTestRun(t, domain.ModePredict)
	seedOutput(t, run)

	out := spec(OutputToTSV, map[string]any{"output_file": "out.tsv", "append": true})
	require.NoError(t, m.Write(ctx, run, out))
	require.NoError(t, m.Write(ctx, run, out))

	data, err := os.ReadFile(filepath.Join(run.Dir, "out.tsv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Date\tInputValue\tOutputValue", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z\t1\t1.5", lines[1])

	// without append the file is replaced
	require.NoError(t, m.Write(ctx, run, spec(OutputToTSV, map[string]any{"output_file": "out.tsv"})))
	data, err = os.ReadFile(filepath.Join(run.Dir, "out.tsv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	fitRun := newTestRun(t, domain.ModeFit)
	seedOutput(t, fitRun)
	require.NoError(t, m.Write(ctx, fitRun, spec(OutputToTSV, map[string]any{"output_file": "fit.tsv", "output_fit": false})))
	assert.NoFileExists(t, filepath.Join(fitRun.Dir, "fit.tsv"))

	assert.ErrorIs(t, m.Write(ctx, run, spec(OutputToTSV, nil)), ErrMissingParam)
}

func TestPlotOutput(t *testing.T) {
	ctx := context.Background()
	m := &PlotOutputModule{res: &Resources{}}

	run := newTestRun(t, domain.ModePredict)
	seedOutput(t, run)
	require.NoError(t, m.Write(ctx, run, spec(PlotPredictions, map[string]any{"sort_by": "Date"})))

	data, err := os.ReadFile(filepath.Join(run.Dir, "predictions.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"label": "2024-01-01"`)
	assert.Contains(t, string(data), `"name": "sales"`)
}

func TestDiscountTransform(t *testing.T) {
	ctx := context.Background()
	intervals := memory.NewPriceIntervalStore()
	activity := memory.NewActivityStore()
	features := memory.NewDiscountFeatureStore()

	day := func(n int) time.Time { return day0.AddDate(0, 0, n) }
	require.NoError(t, intervals.InsertBulk(ctx, []*domain.PriceInterval{
		{SellerID: "a", ProductID: "p1", Price: 100, Start: day(0), End: day(2)},
		{SellerID: "a", ProductID: "p1", Price: 80, Start: day(2), End: day(5)},
		{SellerID: "b", ProductID: "p1", Price: 90, Start: day(0), End: day(5)},
	}))
	var points []*domain.ActivityPoint
	for i := 0; i < 5; i++ {
		points = append(points, &domain.ActivityPoint{SellerID: "a", ProductID: "p1", Timestamp: day(i).Add(12 * time.Hour), Value: float64(10 + 5*i)})
	}
	require.NoError(t, activity.InsertBulk(ctx, points))

	reg := NewRegistry(&Resources{Intervals: intervals, Activity: activity, Features: features})
	tr, err := reg.Transformation(DiscountFeatures)
	require.NoError(t, err)

	transform := spec(DiscountFeatures, map[string]any{"relative": true, "include_rank": true})
	require.NoError(t, tr.Transform(ctx, transform))

	stored, err := features.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].SellerID)
	assert.Equal(t, 20.0, stored[0].Discount)
	assert.True(t, stored[0].EventDate.Equal(day(2)))
	require.NotNil(t, stored[0].RankDisc)
	assert.Equal(t, 1, *stored[0].RankDisc)

	// rerun adds nothing and does not fail on duplicates
	require.NoError(t, tr.Transform(ctx, transform))
	stored, err = features.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	err = tr.Transform(ctx, spec(DiscountFeatures, map[string]any{"from": "yesterday"}))
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	tr, _ = NewRegistry(nil).Transformation(DiscountFeatures)
	assert.ErrorIs(t, tr.Transform(ctx, transform), ErrNoStore)
}

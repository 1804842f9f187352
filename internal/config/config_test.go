package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"retail-signal-lab/internal/domain"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://u:p@localhost:5432/db")

	path := writeTempFile(t, `
paths:
  models: /srv/models
database:
  postgres:
    dsn: ${TEST_PG_DSN}
logging:
  level: debug
sources:
  - name: sales
    kind: postgres
  - name: previous
    kind: sqlite
    path: /srv/models/basev1/db.sqlite
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Paths.Models != "/srv/models" {
		t.Errorf("Paths.Models = %q, want %q", cfg.Paths.Models, "/srv/models")
	}
	if cfg.Paths.Data != DefaultDataDir {
		t.Errorf("Paths.Data = %q, want default %q", cfg.Paths.Data, DefaultDataDir)
	}
	if cfg.Metrics.Namespace != DefaultMetricsNamespace {
		t.Errorf("Metrics.Namespace = %q, want %q", cfg.Metrics.Namespace, DefaultMetricsNamespace)
	}
	if cfg.Sources[0].DSN != "postgres://u:p@localhost:5432/db" {
		t.Errorf("Sources[0].DSN = %q, want inherited postgres dsn", cfg.Sources[0].DSN)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  App
	}{
		{"bad level", App{Logging: LoggingConfig{Level: "trace"}}},
		{"unnamed source", App{Sources: []SourceConfig{{Kind: SourceSqlite, Path: "x"}}}},
		{"duplicate source", App{Sources: []SourceConfig{
			{Name: "a", Kind: SourceSqlite, Path: "x"},
			{Name: "a", Kind: SourceSqlite, Path: "y"},
		}}},
		{"unknown kind", App{Sources: []SourceConfig{{Name: "a", Kind: "mysql"}}}},
		{"missing dsn", App{Sources: []SourceConfig{{Name: "a", Kind: SourceClickhouse}}}},
		{"missing path", App{Sources: []SourceConfig{{Name: "a", Kind: SourceSqlite}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

const pipelineJSON = `{
  "name": "sales",
  "version": 2,
  "input_extraction": {
    "module": "generic_input_extractor",
    "params": {"source": "shop", "input_store": "Sales", "target_var": "Units"}
  },
  "pipeline": {
    "input": {"primary_key": ["Date", "Store"], "keep_only_date": false},
    "extraction": [
      {"module": "generic_feature_selector", "params": {"input_store": "Weather", "features": ["Temp.*"], "forecast_offset": 1}}
    ],
    "model": {"module": "svr", "params": {"model_filename": "model.json"}},
    "output": {"module": "output_to_tsv", "params": {"output_file": "out.tsv"}}
  }
}`

func TestParsePipeline_JSON(t *testing.T) {
	p, err := ParsePipeline([]byte(pipelineJSON))
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}

	if p.Version != "2" {
		t.Errorf("Version = %q, want %q", p.Version, "2")
	}
	if p.Label() != "salesv2" {
		t.Errorf("Label() = %q, want %q", p.Label(), "salesv2")
	}
	if p.Pipeline.Input.KeepDate() {
		t.Errorf("KeepDate() should be false when keep_only_date is false")
	}
	if len(p.Pipeline.Output) != 1 || p.Pipeline.Output[0].Module != "output_to_tsv" {
		t.Errorf("Output = %+v, want single output_to_tsv module", p.Pipeline.Output)
	}
	if err := p.Validate(domain.ModeFitInit); err != nil {
		t.Errorf("Validate(fit-init) failed: %v", err)
	}

	var params struct {
		InputStore     string   `yaml:"input_store"`
		Features       []string `yaml:"features"`
		ForecastOffset int      `yaml:"forecast_offset"`
	}
	if err := p.Pipeline.Extraction[0].Decode(&params); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if params.InputStore != "Weather" || params.ForecastOffset != 1 || len(params.Features) != 1 {
		t.Errorf("Decoded params = %+v", params)
	}
}

func TestParsePipeline_OutputList(t *testing.T) {
	p, err := ParsePipeline([]byte(`
id: p1
pipeline:
  input:
    primary_key: [Date]
  output:
    - module: output_to_tsv
    - module: plot_predictions
`))
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}
	if len(p.Pipeline.Output) != 2 {
		t.Fatalf("Expected 2 output modules, got %d", len(p.Pipeline.Output))
	}
	if !p.Pipeline.Input.KeepDate() {
		t.Errorf("KeepDate() should default to true")
	}
	if p.Label() != "p1" {
		t.Errorf("Label() = %q, want %q", p.Label(), "p1")
	}

	if _, err := ParsePipeline([]byte("pipeline:\n  output: 3\n")); err == nil {
		t.Errorf("Expected error for scalar output")
	}
}

func TestPipelineValidate(t *testing.T) {
	base, err := ParsePipeline([]byte(pipelineJSON))
	if err != nil {
		t.Fatalf("ParsePipeline failed: %v", err)
	}

	noModel := *base
	noModel.Pipeline.Model = nil
	if err := noModel.Validate(domain.ModePredict); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without model, got %v", err)
	}

	noInput := *base
	noInput.InputExtraction = nil
	if err := noInput.Validate(domain.ModeFit); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig without input extraction, got %v", err)
	}
	if err := noInput.Validate(domain.ModePredictActive); err != nil {
		t.Errorf("predict-active does not extract input, got %v", err)
	}

	if err := base.Validate(domain.ModeTransform); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for transform without modules, got %v", err)
	}

	dup := *base
	dup.Pipeline.Extraction = []ModuleSpec{{Module: "generic_feature_selector"}, {Module: "generic_feature_selector"}}
	if err := dup.Validate(domain.ModeFit); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for duplicated collection, got %v", err)
	}
	dup.Pipeline.Extraction[1].Name = "weather_lag"
	if err := dup.Validate(domain.ModeFit); err != nil {
		t.Errorf("Distinct collection names should validate, got %v", err)
	}
}

func TestResolveMode(t *testing.T) {
	p := &Pipeline{Mode: "predict"}
	if m, err := p.ResolveMode(""); err != nil || m != domain.ModePredict {
		t.Errorf("ResolveMode(\"\") = %v, %v", m, err)
	}
	if m, err := p.ResolveMode("fit"); err != nil || m != domain.ModeFit {
		t.Errorf("ResolveMode(fit) = %v, %v", m, err)
	}
	if _, err := p.ResolveMode("train"); !errors.Is(err, domain.ErrInvalidMode) {
		t.Errorf("Expected ErrInvalidMode, got %v", err)
	}
}

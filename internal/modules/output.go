package modules

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/reporting"
)

type outputParams struct {
	OutputFile string `yaml:"output_file"`
	Append     bool   `yaml:"append"`
	OutputFit  *bool  `yaml:"output_fit"` // false skips fit modes
	SortBy     string `yaml:"sort_by"`
}

// TSVOutputModule writes InputFeat fields with the input and predicted Value as TSV.
type TSVOutputModule struct {
	res *Resources
}

// Write implements Output.
func (m *TSVOutputModule) Write(ctx context.Context, run *Run, spec config.ModuleSpec) error {
	var p outputParams
	if err := spec.Decode(&p); err != nil {
		return err
	}
	if p.OutputFile == "" {
		return fmt.Errorf("%w: %s.output_file", ErrMissingParam, spec.Module)
	}
	if run.Mode.IsFit() && !boolOr(p.OutputFit, true) {
		return nil
	}

	fields, inputs, outputs, err := predictionRows(ctx, run)
	if err != nil {
		return err
	}

	path := run.Path(p.OutputFile)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	header := true
	if p.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			header = false
		}
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	if err := reporting.WriteTSV(f, fields, inputs, outputs, header); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	m.res.logger().Info("output written", zap.String("file", path), zap.Int("records", len(inputs)))
	return f.Close()
}

// PlotOutputModule writes predictions next to true values as a JSON plot document.
type PlotOutputModule struct {
	res *Resources
}

// Write implements Output.
func (m *PlotOutputModule) Write(ctx context.Context, run *Run, spec config.ModuleSpec) error {
	var p outputParams
	if err := spec.Decode(&p); err != nil {
		return err
	}
	if p.OutputFile == "" {
		p.OutputFile = "predictions.json"
	}
	if run.Mode.IsFit() && !boolOr(p.OutputFit, true) {
		m.res.logger().Info("skipping plots on fit predictions")
		return nil
	}

	fields, inputs, outputs, err := predictionRows(ctx, run)
	if err != nil {
		return err
	}
	plot, err := reporting.BuildPredictionPlot(run.Name, fields, inputs, outputs, p.SortBy)
	if err != nil {
		return err
	}

	path := run.Path(p.OutputFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer f.Close()

	if err := plot.WriteJSON(f); err != nil {
		return fmt.Errorf("write plot file: %w", err)
	}
	m.res.logger().Info("plot written", zap.String("file", path), zap.Int("points", len(plot.Points)))
	return f.Close()
}

// predictionRows returns InputFeat field names other than Value with the
// InputFeat and Output records, aligned by position.
func predictionRows(ctx context.Context, run *Run) ([]string, []domain.Record, []domain.Record, error) {
	input, err := run.Store.Collection(ctx, domain.CollectionInputFeat)
	if err != nil {
		return nil, nil, nil, err
	}
	output, err := run.Store.Collection(ctx, domain.CollectionOutput)
	if err != nil {
		return nil, nil, nil, err
	}

	fields := make([]string, 0, len(input.Fields))
	for _, f := range input.Fields {
		if f.Name != domain.FieldValue {
			fields = append(fields, f.Name)
		}
	}
	return fields, input.Records, output.Records, nil
}

package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/domain"
)

// PipelineOutcome is the result of one pipeline in a batch.
type PipelineOutcome struct {
	RunID    string
	Pipeline string
	Mode     domain.Mode
	Records  int // Output records
	Duration time.Duration
	Err      error
}

// BatchResult contains the outcomes of a batch run.
type BatchResult struct {
	Succeeded []PipelineOutcome
	Failed    []PipelineOutcome
	Errors    []string // "pipeline: error" for each failure
}

// RunBatch executes every pipeline in turn. A failing pipeline is logged and
// recorded and does not stop the batch. A zero mode uses each pipeline's own mode.
func (o *Orchestrator) RunBatch(ctx context.Context, cfgs []*config.Pipeline, mode domain.Mode) *BatchResult {
	result := &BatchResult{}

	for i, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("batch cancelled", zap.Int("remaining", len(cfgs)-i), zap.Error(err))
			break
		}

		outcome := o.runOne(ctx, cfg, mode)
		if outcome.Err != nil {
			result.Failed = append(result.Failed, outcome)
			result.Errors = append(result.Errors, outcome.Pipeline+": "+outcome.Err.Error())
		} else {
			result.Succeeded = append(result.Succeeded, outcome)
		}
	}

	o.logger.Info("batch complete",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)))
	return result
}

func (o *Orchestrator) runOne(ctx context.Context, cfg *config.Pipeline, mode domain.Mode) PipelineOutcome {
	outcome := PipelineOutcome{RunID: o.newID(), Mode: mode}
	if cfg != nil {
		outcome.Pipeline = cfg.Label()
	}
	if outcome.Pipeline == "" {
		outcome.Pipeline = "unnamed"
	}

	start := o.now()
	if mode == 0 && cfg != nil {
		m, err := cfg.ResolveMode("")
		if err != nil {
			outcome.Err = err
		}
		outcome.Mode = m
	}
	if outcome.Err == nil {
		var records []domain.Record
		records, outcome.Err = o.Exec(ctx, cfg, outcome.Mode, nil, "")
		outcome.Records = len(records)
	}
	outcome.Duration = o.now().Sub(start)

	log := o.logger.With(
		zap.String("run_id", outcome.RunID),
		zap.String("pipeline", outcome.Pipeline),
		zap.String("mode", outcome.Mode.String()))
	if outcome.Err != nil {
		log.Error("pipeline failed", zap.Error(outcome.Err))
	} else {
		log.Info("pipeline succeeded", zap.Int("records", outcome.Records), zap.Duration("duration", outcome.Duration))
	}

	o.record(ctx, outcome)
	return outcome
}

// record writes the outcome to the run log.
func (o *Orchestrator) record(ctx context.Context, outcome PipelineOutcome) {
	if o.runLog == nil {
		return
	}

	entry := &domain.RunLogEntry{
		ID:        outcome.RunID,
		Pipeline:  outcome.Pipeline,
		Mode:      outcome.Mode.String(),
		Type:      domain.LogTypeInfo,
		Message:   "pipeline succeeded",
		CreatedAt: o.now().UTC(),
	}
	if outcome.Err != nil {
		entry.Type = domain.LogTypeError
		entry.Message = "pipeline failed"
		entry.Extended = outcome.Err.Error()
	}

	if err := o.runLog.Insert(ctx, entry); err != nil {
		o.logger.Warn("run log insert failed", zap.String("run_id", outcome.RunID), zap.Error(err))
	}
}

func newRunID() string {
	return uuid.NewString()
}

package config

import (
	"fmt"

	"retail-signal-lab/internal/domain"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the application config.
func (c *App) Validate() error {
	if !logLevels[c.Logging.Level] {
		return fmt.Errorf("%w: logging.level %q must be one of debug, info, warn, error", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Database.Postgres.MaxConns < 1 {
		return fmt.Errorf("%w: database.postgres.max_conns must be >= 1", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%w: %s.name is required", ErrInvalidConfig, prefix)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s.name %q is duplicated", ErrInvalidConfig, prefix, s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case SourcePostgres, SourceClickhouse:
			if s.DSN == "" {
				return fmt.Errorf("%w: %s (%s) has no dsn and database.%s.dsn is empty", ErrInvalidConfig, prefix, s.Name, s.Kind)
			}
		case SourceSqlite:
			if s.Path == "" {
				return fmt.Errorf("%w: %s.path is required for sqlite sources", ErrInvalidConfig, prefix)
			}
		default:
			return fmt.Errorf("%w: %s.kind %q must be postgres, clickhouse or sqlite", ErrInvalidConfig, prefix, s.Kind)
		}
	}
	return nil
}

// Validate checks that the specification defines every stage mode needs.
func (p *Pipeline) Validate(mode domain.Mode) error {
	if mode == domain.ModeTransform {
		if len(p.Transformation) == 0 {
			return fmt.Errorf("%w: transform mode requires transformation modules", ErrInvalidConfig)
		}
		for i, m := range p.Transformation {
			if m.Module == "" {
				return fmt.Errorf("%w: transformation[%d].module is required", ErrInvalidConfig, i)
			}
		}
		return nil
	}

	if p.Pipeline.Model == nil || p.Pipeline.Model.Module == "" {
		return fmt.Errorf("%w: pipeline.model.module is required", ErrInvalidConfig)
	}
	if mode == domain.ModePredictActive {
		return nil
	}

	if p.InputExtraction == nil || p.InputExtraction.Module == "" {
		return fmt.Errorf("%w: input_extraction.module is required", ErrInvalidConfig)
	}
	if len(p.Pipeline.Input.PrimaryKey) == 0 {
		return fmt.Errorf("%w: pipeline.input.primary_key is required", ErrInvalidConfig)
	}
	collections := map[string]bool{
		domain.CollectionInput:     true,
		domain.CollectionFtrSpace:  true,
		domain.CollectionInputFeat: true,
		domain.CollectionOutput:    true,
	}
	for i, m := range p.Pipeline.Extraction {
		if m.Module == "" {
			return fmt.Errorf("%w: pipeline.extraction[%d].module is required", ErrInvalidConfig, i)
		}
		if collections[m.Collection()] {
			return fmt.Errorf("%w: pipeline.extraction[%d] collection %q is already used, set a distinct name", ErrInvalidConfig, i, m.Collection())
		}
		collections[m.Collection()] = true
	}
	for i, m := range p.Pipeline.Output {
		if m.Module == "" {
			return fmt.Errorf("%w: pipeline.output[%d].module is required", ErrInvalidConfig, i)
		}
	}
	return nil
}

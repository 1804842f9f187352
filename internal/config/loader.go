package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"retail-signal-lab/internal/domain"
)

func readExpanded(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	// Expand ${VAR} environment variables
	return []byte(os.ExpandEnv(string(data))), nil
}

// Load reads an application config file.
func Load(path string) (*App, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var cfg App
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads an application config, applies defaults, and validates.
func LoadAndValidate(path string) (*App, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadPipeline reads a pipeline specification (YAML or JSON).
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}
	return ParsePipeline(data)
}

// ParsePipeline parses a pipeline specification.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline yaml: %w", err)
	}
	return &p, nil
}

// LoadPipelines reads several pipeline specifications, stopping at the first failure.
func LoadPipelines(paths []string) ([]*Pipeline, error) {
	out := make([]*Pipeline, 0, len(paths))
	for _, path := range paths {
		p, err := LoadPipeline(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Marshal encodes a pipeline specification as YAML.
func (p *Pipeline) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// ResolveMode returns mode when set, otherwise the mode named in the specification.
func (p *Pipeline) ResolveMode(mode string) (domain.Mode, error) {
	if mode == "" {
		mode = p.Mode
	}
	return domain.ParseMode(mode)
}

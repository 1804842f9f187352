package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration document fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Pipeline is a pipeline specification.
type Pipeline struct {
	ID              string       `yaml:"id,omitempty" json:"id,omitempty"`
	Name            string       `yaml:"name,omitempty" json:"name,omitempty"`
	Version         string       `yaml:"version,omitempty" json:"version,omitempty"`
	Usecase         string       `yaml:"usecase,omitempty" json:"usecase,omitempty"`
	Dir             string       `yaml:"dir,omitempty" json:"dir,omitempty"`
	Mode            string       `yaml:"mode,omitempty" json:"mode,omitempty"`
	InputExtraction *ModuleSpec  `yaml:"input_extraction,omitempty" json:"input_extraction,omitempty"`
	Pipeline        Stages       `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Transformation  []ModuleSpec `yaml:"transformation,omitempty" json:"transformation,omitempty"`
}

// Stages are the store-backed steps of a pipeline.
type Stages struct {
	Input      InputSpec    `yaml:"input" json:"input"`
	Extraction []ModuleSpec `yaml:"extraction,omitempty" json:"extraction,omitempty"`
	Model      *ModuleSpec  `yaml:"model,omitempty" json:"model,omitempty"`
	Output     OutputList   `yaml:"output,omitempty" json:"output,omitempty"`
}

// InputSpec describes how records are keyed across collections.
type InputSpec struct {
	PrimaryKey   []string `yaml:"primary_key" json:"primary_key"`
	KeepOnlyDate *bool    `yaml:"keep_only_date,omitempty" json:"keep_only_date,omitempty"`
}

// KeepDate reports whether datetime key fields are truncated to the day. Defaults to true.
func (s InputSpec) KeepDate() bool {
	return s.KeepOnlyDate == nil || *s.KeepOnlyDate
}

// ModuleSpec names a registered module and its parameters.
type ModuleSpec struct {
	Module string         `yaml:"module" json:"module"`
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"` // collection name, defaults to Module
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Collection is the working store collection an extraction module writes.
func (m ModuleSpec) Collection() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Module
}

// Decode copies Params into out, a pointer to a module's typed parameter struct.
// Unknown keys are ignored.
func (m ModuleSpec) Decode(out any) error {
	if len(m.Params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", m.Module, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s params: %v", ErrInvalidConfig, m.Module, err)
	}
	return nil
}

// OutputList accepts either a single output module or a list of them.
type OutputList []ModuleSpec

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OutputList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var single ModuleSpec
		if err := value.Decode(&single); err != nil {
			return err
		}
		*o = OutputList{single}
		return nil
	case yaml.SequenceNode:
		var list []ModuleSpec
		if err := value.Decode(&list); err != nil {
			return err
		}
		*o = list
		return nil
	default:
		return fmt.Errorf("pipeline.output: expected mapping or sequence at line %d", value.Line)
	}
}

// Label identifies the pipeline in logs and run log entries.
func (p *Pipeline) Label() string {
	switch {
	case p.Name != "" && p.Version != "":
		return p.Name + "v" + p.Version
	case p.Name != "":
		return p.Name
	case p.ID != "":
		return p.ID
	default:
		return p.Dir
	}
}

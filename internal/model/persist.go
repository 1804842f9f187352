package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// FileName is the model file inside a pipeline directory.
const FileName = "model.json"

// Save writes the model as JSON, replacing the file atomically.
func (m *LinearSVR) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace model file: %w", err)
	}
	return nil
}

// Load reads a model saved with Save.
func Load(path string) (*LinearSVR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFitted, path)
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	var m LinearSVR
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if len(m.Weights) == 0 || len(m.Mean) != len(m.Weights) || len(m.Scale) != len(m.Weights) {
		return nil, fmt.Errorf("%w: corrupt model file %s", ErrDimension, path)
	}
	return &m, nil
}

// CheckFeatures verifies that features match the persisted order.
func (m *LinearSVR) CheckFeatures(features []string) error {
	if !slices.Equal(m.Features, features) {
		return fmt.Errorf("%w: have %v, got %v", ErrFeatureMismatch, m.Features, features)
	}
	return nil
}

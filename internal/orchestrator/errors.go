package orchestrator

import "errors"

// Orchestrator errors
var (
	// ErrMissingIdentity is returned when a pipeline has no dir, name or id to place it on disk.
	ErrMissingIdentity = errors.New("pipeline has neither dir, name nor id")

	// ErrPipelineDirNotFound is returned when a mode needs an existing pipeline directory.
	ErrPipelineDirNotFound = errors.New("pipeline directory not found")

	// ErrMissingValueField is returned when a fit mode's Input lacks the Value field.
	ErrMissingValueField = errors.New("input collection has no Value field")

	// ErrEmptyCollection is returned when input extraction yields no records.
	ErrEmptyCollection = errors.New("collection is empty")

	// ErrNoOverride is returned when predict-active runs without an override store.
	ErrNoOverride = errors.New("predict-active requires an override store")
)

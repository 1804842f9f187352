// Package config loads the YAML documents that drive the tools:
// pipeline specifications and the runtime application settings.
//
// Both loaders expand ${VAR} references from the environment before parsing.
// Pipeline specifications written as JSON load unchanged, since JSON is a subset of YAML.
package config

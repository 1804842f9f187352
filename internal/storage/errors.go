package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record or collection does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReadOnly is returned when writing to a store opened read-only.
	ErrReadOnly = errors.New("store is read-only")
)

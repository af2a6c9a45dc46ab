package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
)

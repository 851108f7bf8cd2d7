package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("entity already exists")
)

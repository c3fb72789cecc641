package domain

import "errors"

var (
	// ErrValidation is returned when a required argument is missing or malformed.
	// It is raised before the backing store is touched.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an entity is absent from the current snapshot.
	ErrNotFound = errors.New("entity not found")

	// ErrConcurrency is returned by descriptor based updates and deletes when the
	// stored row no longer matches what the caller holds (missing, or rewritten
	// since the descriptor was read).
	ErrConcurrency = errors.New("entity no longer matches the stored state")

	// ErrDuplicate is returned when a natural key already belongs to another row
	// in the current snapshot. The check is advisory only.
	ErrDuplicate = errors.New("natural key already in use")

	// ErrUnsupported is returned by operations that cannot be emulated over a
	// snapshot.
	ErrUnsupported = errors.New("operation not supported by this store")

	// ErrInvalidTransition is returned when a status change is not one of the
	// forward transitions the stores initiate.
	ErrInvalidTransition = errors.New("invalid status transition")
)

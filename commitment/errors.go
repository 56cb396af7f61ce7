package commitment

import "errors"

var (
	// ErrValidation signals missing or malformed input.
	ErrValidation = errors.New("commitment: invalid input")
	// ErrInvalidState signals an operation attempted from a status that does not permit it.
	ErrInvalidState = errors.New("commitment: operation not permitted in current status")
	// ErrConflict signals a concurrent transition already claimed the resource.
	ErrConflict = errors.New("commitment: conflicting transition in progress")
	// ErrNotFound is returned when no commitment row exists for the identifier.
	ErrNotFound = errors.New("commitment: not found")
)

package common

import "cogentcore.org/core/base/errors"

// Error kinds returned across the engine. Callers match them with errors.Is; the wrapping error
// carries the name of the offending node, workspace or definition.
var (
	// ErrDuplicateItem is returned when a definition or alias with the same name already exists.
	ErrDuplicateItem = errors.New("duplicate item")
	// ErrItemNotFound is returned when a referenced definition, alias, node or probe does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidState is returned when an operation is not valid in the current state of the object.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidParams is returned for out of range indices and malformed arguments.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrInternal is returned when a fixed-capacity pool is exhausted.
	ErrInternal = errors.New("internal error")
)

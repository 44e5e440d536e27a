package relay

import "errors"

var (
	// ErrValidation is returned when a required field is missing on an
	// inbound operation.
	ErrValidation = errors.New("missing required field")

	// ErrNotFound is returned when looking up an account id nobody has
	// registered.
	ErrNotFound = errors.New("account not found")
)

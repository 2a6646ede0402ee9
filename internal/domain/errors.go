package domain

import "errors"

// Error kinds surfaced by workflow operations. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrForbidden         = errors.New("forbidden")
	ErrDependencyFailure = errors.New("dependency failure")
	ErrInvalidInput      = errors.New("invalid input")
)

package apperrors

import "errors"

// Expected failure kinds for cluster operations. Mutations surface these
// as structured results at the service boundary; only snapshot I/O errors
// propagate past it.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)

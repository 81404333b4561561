package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrStageMismatch     = errors.New("stage belongs to another process")
	ErrInvalidPageSize   = errors.New("invalid page size")
	ErrInvalidDefinition = errors.New("invalid process definition")
)

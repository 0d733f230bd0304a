package core

import "errors"

// Common errors.
var (
	ErrNotFound     = errors.New("note not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidColor = errors.New("invalid color")
	ErrClosed       = errors.New("store is closed")
	ErrReadOnly     = errors.New("storage is in read-only mode")
)

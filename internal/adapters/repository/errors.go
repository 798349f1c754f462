package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidLimit  = errors.New("invalid list limit")
	ErrInvalidRecord = errors.New("invalid record")
)

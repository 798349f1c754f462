package config

import "errors"

// Sentinel errors. Load wraps ErrLoadConfig for unreadable sources and
// Validate wraps ErrInvalidConfig for out of range values.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

package google

import "errors"

// Sentinel errors.
var (
	ErrNotConfigured = errors.New("google: oauth client not configured")
	ErrUpstream      = errors.New("google: calendar api error")
	ErrExchange      = errors.New("google: code exchange failed")
)

package service

import "errors"

// Sentinel errors. The HTTP layer maps them to status codes.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrBackpressure        = errors.New("audit queue full")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstream            = errors.New("calendar provider error")
	ErrGoogleNotConfigured = errors.New("google calendar not configured")
	ErrNotConnected        = errors.New("calendar not connected")
)

package ics

import "errors"

// Sentinel errors.
var (
	ErrEmptyFeed   = errors.New("ics: empty feed")
	ErrBadFeed     = errors.New("ics: malformed feed")
	ErrBadWindow   = errors.New("ics: window end before start")
	ErrMissingUID  = errors.New("ics: event without UID")
	ErrMissingTime = errors.New("ics: event without DTSTART")
)

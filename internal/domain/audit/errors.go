package audit

import "errors"

// ErrUnknownStrategy is returned by the name parsers.
var ErrUnknownStrategy = errors.New("unknown audit strategy")

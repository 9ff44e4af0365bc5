package analyzer

import "errors"

var (
	// ErrMissingInput is returned when a trace, a root contract or the code
	// of an executed contract cannot be obtained.
	ErrMissingInput = errors.New("missing analysis input")
	ErrInvalidHash  = errors.New("invalid transaction hash")
)

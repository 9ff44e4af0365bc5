package trace

import "errors"

var (
	ErrInvalidTrace   = errors.New("invalid trace")
	ErrInvalidAddress = errors.New("invalid address")
)

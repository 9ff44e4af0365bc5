package execution

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotReady            = errors.New("execution node is not ready")
)

package pool

import "errors"

// Pool errors - returned during tab acquisition and process management
var (
	ErrPoolShutdown  = errors.New("pool is shutting down")
	ErrTabCreate     = errors.New("failed to create tab")
	ErrRestartFailed = errors.New("browser restart failed")
)

package exception

import "errors"

// Transport errors
var (
	ErrNotConnected   = errors.New("transport: not connected")
	ErrWriteQueueFull = errors.New("transport: outbound queue full")
	ErrConnClosed     = errors.New("transport: connection closed")
)

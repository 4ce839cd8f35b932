package exception

import "errors"

// Distribution errors
var (
	ErrUnknownToken = errors.New("dispatch: unknown token symbol")
)

package exception

import "github.com/yanun0323/errors"

// Feed protocol errors
var (
	// ErrFraming marks a frame whose length is not the fixed wire size.
	// It is fatal to the owning connection only and triggers a reconnect.
	ErrFraming = errors.New("feed: frame length mismatch")

	// ErrShortBody marks a known message type with a truncated body.
	// The frame is dropped and the session continues.
	ErrShortBody = errors.New("feed: body too short for message type")

	ErrLoginRejected     = errors.New("feed: broker rejected login")
	ErrSessionTerminated = errors.New("feed: session terminated")
	ErrUnknownExchange   = errors.New("feed: no session serves exchange")
)

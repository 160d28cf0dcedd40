package transport

import "github.com/pkg/errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport
	// or connection.
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler is returned when no handler is configured.
	ErrNoHandler = errors.New("transport: no handler configured")

	// ErrAlreadyStarted is returned when Start is called on a running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrRejected is returned by Add when the handler refuses a connection.
	ErrRejected = errors.New("transport: connection rejected")
)

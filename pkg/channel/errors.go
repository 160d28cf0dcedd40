package channel

import "errors"

// Channel state errors.
var (
	// ErrTokenUnknown is returned when a token id matches neither the current
	// nor an acceptable previous token.
	ErrTokenUnknown = errors.New("channel: security token unknown")

	// ErrTokenExpired is returned when a known token is past its lifetime.
	ErrTokenExpired = errors.New("channel: security token expired")

	// ErrSequenceNumber is returned when a received sequence number does not
	// follow the last one.
	ErrSequenceNumber = errors.New("channel: unexpected sequence number")

	// ErrRequestUnknown is returned when a response carries a request id
	// that is not pending.
	ErrRequestUnknown = errors.New("channel: request id not pending")

	// ErrRequestTypeMismatch is returned when a response type differs from
	// the type of the pending request.
	ErrRequestTypeMismatch = errors.New("channel: response type does not match request")

	// ErrInvalidToken is returned when installing a token with a zero id.
	ErrInvalidToken = errors.New("channel: invalid security token")
)

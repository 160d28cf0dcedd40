package chunks

import (
	"fmt"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"

	"github.com/backkem/uasc/pkg/message"
)

// Manager errors that are not tied to a single message.
var (
	ErrNoConnection   = errors.New("chunks: unknown connection")
	ErrNotConfigured  = errors.New("chunks: connection has no channel configuration")
	ErrNoCrypto       = errors.New("chunks: connection has no security policy")
	ErrBufferTooSmall = errors.New("chunks: buffer too small for message headers")
)

// StatusError is a codec failure carrying the OPC UA status code that is
// reported to the peer and to the layers above.
type StatusError struct {
	Code ua.StatusCode
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return message.StatusName(e.Code)
	}
	return fmt.Sprintf("%s: %v", message.StatusName(e.Code), e.Err)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is matches a bare status code, so errors.Is(err, message.BadDecodingError)
// works on wrapped failures.
func (e *StatusError) Is(target error) bool {
	code, ok := target.(ua.StatusCode)
	return ok && code == e.Code
}

func statusError(code ua.StatusCode, err error) error {
	return &StatusError{Code: code, Err: err}
}

func statusErrorf(code ua.StatusCode, format string, args ...interface{}) error {
	return &StatusError{Code: code, Err: errors.Errorf(format, args...)}
}

// StatusOf extracts the status code of err. Errors without one map to
// BadTcpInternalError; nil maps to Good.
func StatusOf(err error) ua.StatusCode {
	if err == nil {
		return ua.Good
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var code ua.StatusCode
	if errors.As(err, &code) {
		return code
	}
	return message.BadTCPInternalError
}

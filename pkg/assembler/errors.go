package assembler

import (
	"fmt"

	"github.com/pkg/errors"
)

// ServerReportedError is an `error` event sent by the backend.
type ServerReportedError struct {
	Reason string
}

func (e *ServerReportedError) Error() string {
	return "server reported error: " + e.Reason
}

// TransportError means the stream failed or could not be opened. Err is
// kept for logs; UserMessage is what gets shown.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error: %s", e.Op)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage is the generic connectivity message.
func (e *TransportError) UserMessage() string {
	return "Connection Error: unable to reach the server. Please try again."
}

// ErrAbandoned is matched by the error Next returns after the caller
// canceled the request or closed the stream.
var ErrAbandoned = errors.New("stream abandoned")

// AbandonedError carries what caused the abandonment.
type AbandonedError struct {
	Cause error
}

func (e *AbandonedError) Error() string {
	if e.Cause == nil {
		return ErrAbandoned.Error()
	}
	return ErrAbandoned.Error() + ": " + e.Cause.Error()
}

func (e *AbandonedError) Is(target error) bool { return target == ErrAbandoned }

func (e *AbandonedError) Unwrap() error { return e.Cause }

// FailureMessage renders a terminal failure for display.
func FailureMessage(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.UserMessage()
	}
	var se *ServerReportedError
	if errors.As(err, &se) {
		return "Error: " + se.Reason
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return ""
}

package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed review call.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindUnavailable ErrorKind = "unavailable"
	KindMalformed   ErrorKind = "malformed_response"
	KindRejected    ErrorKind = "rejected"
)

// Error is returned by Client.Review once the retry policy is exhausted
// or a non-retryable failure occurs.
type Error struct {
	Kind       ErrorKind
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("llm %s after %d attempt(s)", e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusError is a non-2xx reply from the endpoint.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.Code, e.Msg)
}

// errMalformed marks a 2xx body that could not be used.
var errMalformed = errors.New("malformed response")

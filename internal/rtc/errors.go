package rtc

import (
	"errors"
	"fmt"
)

var (
	ErrNegotiationFailure = errors.New("negotiation failed")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrUnexpectedAnswer   = errors.New("answer without a pending offer")
	ErrUnknownPeer        = errors.New("no session for remote participant")
	ErrRegistryClosed     = errors.New("registry closed")
)

// Error ties a failure to the remote participant and the step that failed.
type Error struct {
	Op       string
	RemoteID string
	Err      error
}

func (e *Error) Error() string {
	if e.RemoteID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.RemoteID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, remoteID string, err error) *Error {
	return &Error{Op: op, RemoteID: remoteID, Err: err}
}

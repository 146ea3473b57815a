package signaling

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpmeet/internal/protocol"
	"github.com/BioHazard786/Warpmeet/internal/room"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotInRoom      = errors.New("you must join a room first")

	// ErrUnauthorizedStateChange and ErrTargetUnreachable are logged but
	// never reported to the client.
	ErrUnauthorizedStateChange = errors.New("cannot change another participant's state")
	ErrTargetUnreachable       = errors.New("relay target not connected")
)

// RequestError ties a failed inbound event to the operation that rejected it.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func newRequestError(op string, err error) *RequestError {
	return &RequestError{Op: op, Err: err}
}

func invalid(op, details string) *RequestError {
	return &RequestError{Op: op, Err: fmt.Errorf("%w: %s", ErrInvalidRequest, details)}
}

// errorCode maps an error onto the client-visible code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrUnknownType):
		return protocol.CodeBadRequest
	case errors.Is(err, ErrNotInRoom):
		return protocol.CodeNotInRoom
	case errors.Is(err, room.ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, room.ErrAlreadyInRoom):
		return protocol.CodeAlreadyInRoom
	default:
		return protocol.CodeInternal
	}
}

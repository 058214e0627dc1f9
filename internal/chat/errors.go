package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when a credential is missing or rejected by the Verifier.
	ErrUnauthenticated = errors.New("authentication failed")
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrNotFound is returned when a connection or membership the caller expected does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRoom is returned for an empty or malformed room name.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrNotInRoom is returned when a room-bound operation is attempted without a room.
	ErrNotInRoom = errors.New("connection is not in a room")
)

func invalidRoom(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRoom, reason)
}

// ErrorCode maps an engine error to the short code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrInvalidRoom):
		return "invalid_room"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

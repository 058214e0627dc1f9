package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxRoomNameLength is the longest room name, in bytes, accepted by Join.
const MaxRoomNameLength = 100

// Identity is the authenticated user a connection acts as.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Message is a chat message routed to every member of a room.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ActiveUser is the entry kept in the active-identity set for a username.
type ActiveUser struct {
	Username     string    `json:"username"`
	ConnectionID string    `json:"socketId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// RoomSummary describes a live room.
type RoomSummary struct {
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	Room          string
	PreviousRoom  string
	PreviousCount int
	MemberCount   int
}

// Verifier validates a bearer credential and yields the identity behind it.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// Sink receives events for one connection. Deliver must not block and must
// not call back into the Engine; it returns false if the event was dropped.
type Sink interface {
	Deliver(ev Event) bool
}

// ValidateRoomName reports ErrInvalidRoom for blank, oversized or non UTF-8 names.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidRoom("room name cannot be empty")
	}
	if len(name) > MaxRoomNameLength {
		return invalidRoom("room name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return invalidRoom("room name contains invalid characters")
	}
	return nil
}

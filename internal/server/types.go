// Package server defines the inbound frame format and utility helpers that
// are reused across client and hub logic.
package server

import (
	"errors"
	"strings"
)

// Inbound frame types sent by clients.
const (
	InboundJoinRoom    = "joinRoom"
	InboundChatMessage = "chatMessage"
	InboundLeaveRoom   = "leaveRoom"
	InboundLogout      = "logout"
)

// InboundMessage is a JSON frame received from a client.
type InboundMessage struct {
	Type    string `json:"type"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

var (
	errMalformedFrame = errors.New("malformed frame")
	errUnknownType    = errors.New("unknown frame type")
	errRateLimited    = errors.New("rate limit exceeded")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// decodeFrame parses one inbound frame. On failure the returned message is
// zero and the error wraps errMalformedFrame.
func decodeFrame(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return msg, nil
}

// dispatch applies msg to the engine on behalf of connID. It returns false
// once the connection should be closed.
func dispatch(engine *chat.Engine, connID string, msg InboundMessage) (bool, error) {
	switch msg.Type {
	case InboundJoinRoom:
		_, err := engine.JoinRoom(connID, msg.Room)
		return true, err
	case InboundChatMessage:
		_, err := engine.SendMessage(connID, msg.Message, msg.ID)
		return true, err
	case InboundLeaveRoom:
		return true, engine.LeaveRoom(connID)
	case InboundLogout:
		engine.Logout(connID)
		return false, nil
	default:
		return true, fmt.Errorf("%w: %q", errUnknownType, msg.Type)
	}
}

// errorEvent builds the error event reported back to the client that sent
// a rejected frame.
func errorEvent(err error) chat.Event {
	var code string
	switch {
	case errors.Is(err, errMalformedFrame), errors.Is(err, errUnknownType):
		code = "bad_request"
	case errors.Is(err, errRateLimited):
		code = "rate_limited"
	default:
		return chat.ErrorEvent(err)
	}
	return chat.Event{
		Type: chat.EventError,
		Data: chat.ErrorPayload{Code: code, Message: err.Error()},
	}
}

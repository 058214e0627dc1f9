package chat

import "time"

// EventType names an outbound event.
type EventType string

// Outbound event types.
const (
	EventMessage     EventType = "message"
	EventUserJoined  EventType = "userJoined"
	EventUserLeft    EventType = "userLeft"
	EventUserList    EventType = "userList"
	EventActiveUsers EventType = "activeUsers"
	EventError       EventType = "error"
)

// Event is a single outbound notification. Data holds one of the payload
// types below, or []ActiveUser for EventActiveUsers.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// MessagePayload is the data of an EventMessage.
type MessagePayload struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// MembershipPayload is the data of EventUserJoined and EventUserLeft.
type MembershipPayload struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// UserListPayload is the roster sent to a connection that just joined.
type UserListPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// ErrorPayload is the data of an EventError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds the event reported to a connection whose request failed.
func ErrorEvent(err error) Event {
	return Event{
		Type: EventError,
		Data: ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
	}
}

func messageEvent(msg Message) Event {
	return Event{
		Type: EventMessage,
		Data: MessagePayload{
			Username:  msg.Sender,
			Message:   msg.Body,
			ID:        msg.ID,
			Room:      msg.Room,
			Timestamp: msg.Timestamp,
		},
	}
}

// delivery is one event addressed to one connection.
type delivery struct {
	connID string
	sink   Sink
	event  Event
}

// outbox collects deliveries while the state lock is held; they are sent
// after it is released.
type outbox []delivery

func (o *outbox) add(connID string, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	*o = append(*o, delivery{connID: connID, sink: sink, event: ev})
}

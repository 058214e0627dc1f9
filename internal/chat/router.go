package chat

import (
	"fmt"
	"time"
)

// Router stamps chat messages and addresses them to every member of the
// sender's current room, the sender included. Clients deduplicate their own
// optimistic echo by message id; the router never suppresses it.
type Router struct {
	registry  *Registry
	directory *Directory
	now       func() time.Time
	newID     func() string
}

// NewRouter returns a router using now for timestamps and newID for
// messages that arrive without a client id.
func NewRouter(registry *Registry, directory *Directory, now func() time.Time, newID func() string) *Router {
	return &Router{
		registry:  registry,
		directory: directory,
		now:       now,
		newID:     newID,
	}
}

// Route builds the message sent by connID and queues it for the room.
func (r *Router) Route(out *outbox, connID, body, clientMessageID string) (Message, error) {
	conn, exists := r.registry.Get(connID)
	if !exists {
		return Message{}, fmt.Errorf("%w: connection %s", ErrNotFound, connID)
	}
	if conn.Room == "" {
		return Message{}, ErrNotInRoom
	}

	id := clientMessageID
	if id == "" {
		id = r.newID()
	}

	msg := Message{
		ID:        id,
		Room:      conn.Room,
		Sender:    conn.Identity.Username,
		Body:      body,
		Timestamp: r.now().UTC(),
	}

	ev := messageEvent(msg)
	for _, m := range r.directory.ordered(conn.Room) {
		out.add(m.connID, r.registry.sinkFor(m.connID), ev)
	}
	return msg, nil
}

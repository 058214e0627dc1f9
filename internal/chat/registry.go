package chat

import (
	"fmt"
	"sort"
	"time"
)

// Connection is the registry entry for one live transport session.
type Connection struct {
	ID          string
	Identity    Identity
	Room        string
	ConnectedAt time.Time
	sink        Sink
}

// Registry tracks each live connection and the active-identity set.
// It is not safe for concurrent use; the Engine serializes access to it.
type Registry struct {
	conns  map[string]*Connection
	active map[string]ActiveUser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		active: make(map[string]ActiveUser),
	}
}

// Register adds a connection and records it as the active connection for its
// username, replacing any earlier entry (last connect wins).
func (r *Registry) Register(connID string, ident Identity, sink Sink, now time.Time) error {
	if _, exists := r.conns[connID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, connID)
	}

	r.conns[connID] = &Connection{
		ID:          connID,
		Identity:    ident,
		ConnectedAt: now,
		sink:        sink,
	}
	r.active[ident.Username] = ActiveUser{
		Username:     ident.Username,
		ConnectionID: connID,
		ConnectedAt:  now,
	}
	return nil
}

// Unregister removes a connection and returns its final state. The username
// leaves the active-identity set only if this connection is the one recorded
// for it; activeChanged reports whether that happened.
func (r *Registry) Unregister(connID string) (conn Connection, activeChanged bool, err error) {
	c, exists := r.conns[connID]
	if !exists {
		return Connection{}, false, fmt.Errorf("%w: connection %s", ErrNotFound, connID)
	}
	delete(r.conns, connID)

	username := c.Identity.Username
	if current, ok := r.active[username]; ok && current.ConnectionID == connID {
		delete(r.active, username)
		activeChanged = true
	}
	return *c, activeChanged, nil
}

// SetRoom records the room a connection currently belongs to; "" means none.
func (r *Registry) SetRoom(connID, room string) error {
	c, exists := r.conns[connID]
	if !exists {
		return fmt.Errorf("%w: connection %s", ErrNotFound, connID)
	}
	c.Room = room
	return nil
}

// Get returns a copy of the entry for connID.
func (r *Registry) Get(connID string) (Connection, bool) {
	c, exists := r.conns[connID]
	if !exists {
		return Connection{}, false
	}
	return *c, true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Active returns the active-identity set ordered by connect time.
func (r *Registry) Active() []ActiveUser {
	users := make([]ActiveUser, 0, len(r.active))
	for _, u := range r.active {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].ConnectedAt.Equal(users[j].ConnectedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].ConnectedAt.Before(users[j].ConnectedAt)
	})
	return users
}

func (r *Registry) sinkFor(connID string) Sink {
	if c, exists := r.conns[connID]; exists {
		return c.sink
	}
	return nil
}

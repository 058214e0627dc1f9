package chat

import (
	"fmt"
	"sort"
)

type member struct {
	connID   string
	username string
	seq      uint64
}

// Directory maps room names to their member sets. A room exists only while
// it has at least one member: it is created on first join and deleted when
// its last member leaves. Like Registry it relies on the Engine for locking.
type Directory struct {
	registry *Registry
	rooms    map[string]map[string]member
	seq      uint64
}

// NewDirectory returns an empty directory backed by registry, which holds
// each connection's current room.
func NewDirectory(registry *Registry) *Directory {
	return &Directory{
		registry: registry,
		rooms:    make(map[string]map[string]member),
	}
}

// Join moves a connection into room, first removing it from the room its
// registry entry currently names. Either every step applies or none does.
func (d *Directory) Join(connID, room string) (JoinResult, error) {
	if err := ValidateRoomName(room); err != nil {
		return JoinResult{}, err
	}

	conn, exists := d.registry.Get(connID)
	if !exists {
		return JoinResult{}, fmt.Errorf("%w: connection %s", ErrNotFound, connID)
	}
	previous := conn.Room
	if previous != "" && !d.isMember(previous, connID) {
		return JoinResult{}, fmt.Errorf("%w: connection %s missing from room %q", ErrNotFound, connID, previous)
	}
	if err := d.registry.SetRoom(connID, room); err != nil {
		return JoinResult{}, err
	}

	result := JoinResult{Room: room}
	if previous != "" {
		result.PreviousRoom = previous
		result.PreviousCount = d.remove(previous, connID)
	}
	result.MemberCount = d.add(room, connID, conn.Identity.Username)
	return result, nil
}

// Leave removes a connection from room and clears its current room. It fails
// with ErrNotFound if the connection is not a member of room.
func (d *Directory) Leave(connID, room string) (int, error) {
	if !d.isMember(room, connID) {
		return 0, fmt.Errorf("%w: connection %s is not a member of room %q", ErrNotFound, connID, room)
	}
	if conn, exists := d.registry.Get(connID); exists && conn.Room == room {
		if err := d.registry.SetRoom(connID, ""); err != nil {
			return 0, err
		}
	}
	return d.remove(room, connID), nil
}

// Members returns the usernames in room in join order, one entry per connection.
func (d *Directory) Members(room string) []string {
	ordered := d.ordered(room)
	names := make([]string, len(ordered))
	for i, m := range ordered {
		names[i] = m.username
	}
	return names
}

// Count returns the number of connections in room.
func (d *Directory) Count(room string) int {
	return len(d.rooms[room])
}

// Exists reports whether room currently has members.
func (d *Directory) Exists(room string) bool {
	_, ok := d.rooms[room]
	return ok
}

// Rooms lists the live rooms sorted by name.
func (d *Directory) Rooms() []RoomSummary {
	summaries := make([]RoomSummary, 0, len(d.rooms))
	for name, members := range d.rooms {
		summaries = append(summaries, RoomSummary{Name: name, UserCount: len(members)})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

func (d *Directory) isMember(room, connID string) bool {
	members, ok := d.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

func (d *Directory) add(room, connID, username string) int {
	members, ok := d.rooms[room]
	if !ok {
		members = make(map[string]member)
		d.rooms[room] = members
	}
	d.seq++
	members[connID] = member{connID: connID, username: username, seq: d.seq}
	return len(members)
}

func (d *Directory) remove(room, connID string) int {
	members := d.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(d.rooms, room)
		return 0
	}
	return len(members)
}

func (d *Directory) ordered(room string) []member {
	members := d.rooms[room]
	ordered := make([]member, 0, len(members))
	for _, m := range members {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

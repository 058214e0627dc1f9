package chat

// Broadcaster turns membership changes into presence events. It holds no
// state of its own: it reads the registry and directory and appends the
// resulting deliveries to an outbox.
type Broadcaster struct {
	registry  *Registry
	directory *Directory
}

// NewBroadcaster returns a broadcaster reading from registry and directory.
func NewBroadcaster(registry *Registry, directory *Directory) *Broadcaster {
	return &Broadcaster{registry: registry, directory: directory}
}

// AnnounceJoin tells every member of room except the joiner that ident joined.
func (b *Broadcaster) AnnounceJoin(out *outbox, room string, ident Identity, joinerID string, count int) {
	ev := Event{
		Type: EventUserJoined,
		Data: MembershipPayload{Username: ident.Username, Count: count},
	}
	for _, m := range b.directory.ordered(room) {
		if m.connID == joinerID {
			continue
		}
		out.add(m.connID, b.registry.sinkFor(m.connID), ev)
	}
}

// AnnounceLeave tells the remaining members of room that ident left. The
// leaver is skipped even if it is already back in room after a re-join.
func (b *Broadcaster) AnnounceLeave(out *outbox, room string, ident Identity, leaverID string, count int) {
	ev := Event{
		Type: EventUserLeft,
		Data: MembershipPayload{Username: ident.Username, Count: count},
	}
	for _, m := range b.directory.ordered(room) {
		if m.connID == leaverID {
			continue
		}
		out.add(m.connID, b.registry.sinkFor(m.connID), ev)
	}
}

// SnapshotRoom sends the current roster of room to connID.
func (b *Broadcaster) SnapshotRoom(out *outbox, connID, room string) []string {
	users := b.directory.Members(room)
	out.add(connID, b.registry.sinkFor(connID), Event{
		Type: EventUserList,
		Data: UserListPayload{Room: room, Users: users, Count: len(users)},
	})
	return users
}

// SnapshotGlobal sends the active-identity set to every live connection.
func (b *Broadcaster) SnapshotGlobal(out *outbox) []ActiveUser {
	active := b.registry.Active()
	ev := Event{Type: EventActiveUsers, Data: active}
	for connID, c := range b.registry.conns {
		out.add(connID, c.sink, ev)
	}
	return active
}

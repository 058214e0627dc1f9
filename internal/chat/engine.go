package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

// messageIDLength is the size of generated fallback message ids.
const messageIDLength = 21

// Engine is the session, presence and room coordinator. All of its methods
// are safe for concurrent use.
//
// A single lock guards the registry, the directory and the active-identity
// set. Every mutation collects its events in an outbox while holding that
// lock; the outbox is delivered after the lock is released, under a second
// emit lock taken before the first is dropped. Events therefore leave the
// engine in the same order as the mutations that produced them.
type Engine struct {
	mu     sync.Mutex
	emitMu sync.Mutex

	registry  *Registry
	directory *Directory
	presence  *Broadcaster
	router    *Router

	verifier Verifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMessageIDs replaces the generator used for messages sent without an id.
func WithMessageIDs(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewEngine returns an engine that authenticates connections with verifier.
func NewEngine(verifier Verifier, opts ...Option) (*Engine, error) {
	if verifier == nil {
		return nil, errors.New("chat: verifier is required")
	}

	e := &Engine{
		verifier: verifier,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.newID == nil {
		gen, err := nanoid.Standard(messageIDLength)
		if err != nil {
			return nil, fmt.Errorf("chat: create message id generator: %w", err)
		}
		e.newID = gen
	}

	e.registry = NewRegistry()
	e.directory = NewDirectory(e.registry)
	e.presence = NewBroadcaster(e.registry, e.directory)
	e.router = NewRouter(e.registry, e.directory, e.now, e.newID)
	return e, nil
}

// Authenticate resolves a bearer token to an identity. It touches no shared
// state, so a refused connection never reaches the registry.
func (e *Engine) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	ident, err := e.verifier.VerifyToken(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return ident, nil
}

// Register adds an authenticated connection and broadcasts the new
// active-identity set to every connection.
func (e *Engine) Register(connID string, ident Identity, sink Sink) error {
	return e.apply(func(out *outbox) error {
		if err := e.registry.Register(connID, ident, sink, e.now()); err != nil {
			return err
		}
		e.presence.SnapshotGlobal(out)
		e.logger.Info("connection registered",
			"conn_id", connID,
			"username", ident.Username,
			"connections", e.registry.Len())
		return nil
	})
}

// JoinRoom moves connID into room. Members of the room it left are told it
// left, the other members of room are told it joined, and then the joiner
// receives the roster.
func (e *Engine) JoinRoom(connID, room string) (JoinResult, error) {
	var result JoinResult
	err := e.apply(func(out *outbox) error {
		conn, exists := e.registry.Get(connID)
		if !exists {
			return fmt.Errorf("%w: connection %s", ErrNotFound, connID)
		}

		res, err := e.directory.Join(connID, room)
		if err != nil {
			e.logDisagreement(err, connID, conn.Room)
			return err
		}
		result = res

		if res.PreviousRoom != "" {
			e.presence.AnnounceLeave(out, res.PreviousRoom, conn.Identity, connID, res.PreviousCount)
		}
		e.presence.AnnounceJoin(out, room, conn.Identity, connID, res.MemberCount)
		e.presence.SnapshotRoom(out, connID, room)

		e.logger.Info("joined room",
			"conn_id", connID,
			"username", conn.Identity.Username,
			"room", room,
			"previous_room", res.PreviousRoom,
			"members", res.MemberCount)
		return nil
	})
	return result, err
}

// LeaveRoom removes connID from its current room without disconnecting it.
func (e *Engine) LeaveRoom(connID string) error {
	return e.apply(func(out *outbox) error {
		conn, exists := e.registry.Get(connID)
		if !exists {
			return fmt.Errorf("%w: connection %s", ErrNotFound, connID)
		}
		if conn.Room == "" {
			return ErrNotInRoom
		}

		remaining, err := e.directory.Leave(connID, conn.Room)
		if err != nil {
			e.logDisagreement(err, connID, conn.Room)
			return err
		}
		e.presence.AnnounceLeave(out, conn.Room, conn.Identity, connID, remaining)

		e.logger.Info("left room",
			"conn_id", connID,
			"username", conn.Identity.Username,
			"room", conn.Room,
			"members", remaining)
		return nil
	})
}

// SendMessage routes body to every member of the sender's room, the sender
// included. clientMessageID may be empty, in which case an id is generated.
func (e *Engine) SendMessage(connID, body, clientMessageID string) (Message, error) {
	var msg Message
	err := e.apply(func(out *outbox) error {
		m, err := e.router.Route(out, connID, body, clientMessageID)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if errors.Is(err, ErrNotInRoom) {
		e.logger.Debug("message dropped", "conn_id", connID, "reason", err)
	}
	return msg, err
}

// Logout ends the session of connID. It performs the same unwind as
// Disconnect; the transport closes the connection afterwards.
func (e *Engine) Logout(connID string) {
	e.release(connID, "logout")
}

// Disconnect unwinds everything connID holds. It is safe to call for
// unknown connections and to call more than once.
func (e *Engine) Disconnect(connID string) {
	e.release(connID, "disconnect")
}

func (e *Engine) release(connID, reason string) {
	_ = e.apply(func(out *outbox) error {
		conn, exists := e.registry.Get(connID)
		if !exists {
			return nil
		}

		if conn.Room != "" {
			remaining, err := e.directory.Leave(connID, conn.Room)
			if err != nil {
				e.logDisagreement(err, connID, conn.Room)
			} else {
				e.presence.AnnounceLeave(out, conn.Room, conn.Identity, connID, remaining)
			}
		}

		_, activeChanged, err := e.registry.Unregister(connID)
		if err != nil {
			e.logger.Error("unregister failed", "conn_id", connID, "error", err)
			return nil
		}
		if activeChanged {
			e.presence.SnapshotGlobal(out)
		}

		e.logger.Info("connection released",
			"conn_id", connID,
			"username", conn.Identity.Username,
			"reason", reason,
			"connections", e.registry.Len())
		return nil
	})
}

// logDisagreement reports an ErrNotFound from the directory for a connection
// the registry knows, which means the two have drifted apart.
func (e *Engine) logDisagreement(err error, connID, room string) {
	if !errors.Is(err, ErrNotFound) {
		return
	}
	e.logger.Error("registry and directory disagree",
		"conn_id", connID,
		"room", room,
		"error", err)
}

// Rooms lists the live rooms and their member counts.
func (e *Engine) Rooms() []RoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.Rooms()
}

// RoomMembers returns the roster of room in join order. The boolean is
// false if the room does not exist.
func (e *Engine) RoomMembers(room string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.directory.Exists(room) {
		return nil, false
	}
	return e.directory.Members(room), true
}

// ActiveUsers returns the active-identity set.
func (e *Engine) ActiveUsers() []ActiveUser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Active()
}

// Connection returns the registry entry for connID.
func (e *Engine) Connection(connID string) (Connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(connID)
}

// apply runs fn under the state lock and delivers whatever it queued. The
// outbox is discarded if fn fails, so a rejected operation emits nothing.
func (e *Engine) apply(fn func(out *outbox) error) error {
	var out outbox

	e.mu.Lock()
	if err := fn(&out); err != nil {
		e.mu.Unlock()
		return err
	}
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	for _, d := range out {
		if !d.sink.Deliver(d.event) {
			e.logger.Warn("event dropped",
				"conn_id", d.connID,
				"event", d.event.Type)
		}
	}
	return nil
}

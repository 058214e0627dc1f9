package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingSink stores every event delivered to it.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	full   bool
}

func (s *recordingSink) Deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range s.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// staticVerifier accepts tokens of the form listed in its map.
type staticVerifier map[string]Identity

func (v staticVerifier) VerifyToken(_ context.Context, token string) (Identity, error) {
	ident, ok := v[token]
	if !ok {
		return Identity{}, errors.New("unknown token")
	}
	return ident, nil
}

// fakeClock advances by one second per reading so connect times are ordered.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	var n int
	var mu sync.Mutex
	opts = append([]Option{
		WithClock(newFakeClock().Now),
		WithMessageIDs(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("gen-%d", n)
		}),
	}, opts...)
	engine, err := NewEngine(staticVerifier{}, opts...)
	require.NoError(t, err)
	return engine
}

func ident(name string) Identity {
	return Identity{UserID: "id-" + name, Username: name}
}

func connect(t *testing.T, e *Engine, connID, username string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, e.Register(connID, ident(username), sink))
	return sink
}

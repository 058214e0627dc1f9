package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testEnv is a fully wired server backed by a temporary database.
type testEnv struct {
	server *httptest.Server
	hub    *Hub
	engine *chat.Engine
	auth   *auth.Service
	users  *store.UserRepository
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	users := store.NewUserRepository(db)
	authService := auth.NewService(users, auth.NewPasswordHasher(bcrypt.MinCost), auth.NewTokenManager(auth.TokenConfig{
		Secret: "test-secret",
		Issuer: "test",
		TTL:    time.Hour,
	}))

	engine, err := chat.NewEngine(authService, chat.WithLogger(discardLogger()))
	require.NoError(t, err)

	hub := NewHub(engine, discardLogger())
	go hub.Run()

	api := NewAPI(hub, engine, authService, users, discardLogger())
	ts := httptest.NewServer(SetupRoutes(api))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
	})

	cfg := NewConfig()
	cfg.AllowedOrigins = append([]string{ts.URL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	return &testEnv{
		server: ts,
		hub:    hub,
		engine: engine,
		auth:   authService,
		users:  users,
	}
}

// token registers username and returns a bearer token for it.
func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	ctx := t.Context()
	user, err := e.auth.Register(ctx, username, username+"@example.com", "password123")
	require.NoError(t, err)
	token, err := e.auth.IssueToken(chat.Identity{UserID: user.ID, Username: user.Username})
	require.NoError(t, err)
	return token
}

func (e *testEnv) wsURL(token string) string {
	u, _ := url.Parse(e.server.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// connect dials the WebSocket endpoint as username and waits for the
// active-user snapshot that confirms registration.
func (e *testEnv) connect(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(e.token(t, username)), newOriginHeader(e.server.URL))
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	readUntil(t, conn, chat.EventActiveUsers)
	return conn
}

// wireEvent is an outbound event as a client sees it.
type wireEvent struct {
	Type chat.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (ev wireEvent) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ev.Data, v))
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev wireEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

// readUntil skips events until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want chat.EventType) wireEvent {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if ev.Type == want {
			return ev
		}
	}
}

// readSkipping returns the next event whose type is not activeUsers.
func readSkipping(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if ev.Type != chat.EventActiveUsers {
			return ev
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame InboundMessage) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// expectNoEvent fails if conn receives anything other than presence
// snapshots within timeout.
func expectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
		}
		var ev wireEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		if ev.Type != chat.EventActiveUsers {
			t.Fatalf("Expected no event, got %s: %s", ev.Type, ev.Data)
		}
	}
}

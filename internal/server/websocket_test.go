package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWebSocketAuthentication verifies that connections are refused before
// the upgrade unless they carry a valid token.
func TestWebSocketAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "garbage token", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL(tt.token), newOriginHeader(env.server.URL))
			if conn != nil {
				_ = conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	assert.Empty(t, env.engine.ActiveUsers())
}

func TestWebSocketBearerHeader(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")

	header := newOriginHeader(env.server.URL)
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), header)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	ev := readUntil(t, conn, chat.EventActiveUsers)
	var active []chat.ActiveUser
	ev.decode(t, &active)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)
}

func TestWebSocketInvalidMethod(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Post(env.server.URL+"/ws", "text/plain", strings.NewReader("test"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestWebSocketRoomConversation walks two clients through joining a room and
// exchanging a message.
func TestWebSocketRoomConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	ev := readSkipping(t, alice)
	require.Equal(t, chat.EventUserList, ev.Type)
	var roster chat.UserListPayload
	ev.decode(t, &roster)
	assert.Equal(t, chat.UserListPayload{Room: "lobby", Users: []string{"alice"}, Count: 1}, roster)

	sendFrame(t, bob, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})

	ev = readSkipping(t, alice)
	require.Equal(t, chat.EventUserJoined, ev.Type)
	var joined chat.MembershipPayload
	ev.decode(t, &joined)
	assert.Equal(t, chat.MembershipPayload{Username: "bob", Count: 2}, joined)

	ev = readSkipping(t, bob)
	require.Equal(t, chat.EventUserList, ev.Type)
	ev.decode(t, &roster)
	assert.Equal(t, []string{"alice", "bob"}, roster.Users)

	sendFrame(t, alice, InboundMessage{Type: InboundChatMessage, Message: "hi", ID: "m1"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readSkipping(t, conn)
		require.Equal(t, chat.EventMessage, ev.Type)
		var msg chat.MessagePayload
		ev.decode(t, &msg)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hi", msg.Message)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "lobby", msg.Room)
		assert.False(t, msg.Timestamp.IsZero())
	}

	members, ok := env.engine.RoomMembers("lobby")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestWebSocketRejectedFrames(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Burst = 100
	})
	alice := env.connect(t, "alice")

	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{name: "message without room", raw: `{"type":"chatMessage","message":"hi"}`, wantCode: "not_in_room"},
		{name: "leave without room", raw: `{"type":"leaveRoom"}`, wantCode: "not_in_room"},
		{name: "empty room name", raw: `{"type":"joinRoom","room":""}`, wantCode: "invalid_room"},
		{name: "malformed json", raw: `not json`, wantCode: "bad_request"},
		{name: "unknown type", raw: `{"type":"shout"}`, wantCode: "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(tt.raw)))
			ev := readSkipping(t, alice)
			require.Equal(t, chat.EventError, ev.Type)
			var payload chat.ErrorPayload
			ev.decode(t, &payload)
			assert.Equal(t, tt.wantCode, payload.Code)
		})
	}

	assert.Len(t, env.engine.ActiveUsers(), 1)
	assert.Empty(t, env.engine.Rooms())
}

// TestWebSocketDisconnectAnnouncesLeave verifies that dropping a connection
// unwinds its room membership and presence.
func TestWebSocketDisconnectAnnouncesLeave(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, alice, chat.EventUserList)
	sendFrame(t, bob, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, bob, chat.EventUserList)
	readUntil(t, alice, chat.EventUserJoined)

	require.NoError(t, bob.Close())

	ev := readSkipping(t, alice)
	require.Equal(t, chat.EventUserLeft, ev.Type)
	var left chat.MembershipPayload
	ev.decode(t, &left)
	assert.Equal(t, chat.MembershipPayload{Username: "bob", Count: 1}, left)

	ev = readUntil(t, alice, chat.EventActiveUsers)
	var active []chat.ActiveUser
	ev.decode(t, &active)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketLogoutClosesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, alice, chat.EventUserList)
	sendFrame(t, bob, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, bob, chat.EventUserList)

	sendFrame(t, bob, InboundMessage{Type: InboundLogout})

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := bob.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}

	ev := readUntil(t, alice, chat.EventUserLeft)
	var left chat.MembershipPayload
	ev.decode(t, &left)
	assert.Equal(t, "bob", left.Username)

	require.Eventually(t, func() bool { return len(env.engine.ActiveUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketOriginValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "alice")

	tests := []struct {
		name   string
		origin string
		want   int
	}{
		{name: "missing origin", origin: "", want: http.StatusForbidden},
		{name: "disallowed origin", origin: "http://evil.example.com", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(env.wsURL(token), newOriginHeader(tt.origin))
			if conn != nil {
				_ = conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestWebSocketMessageSizeLimit(t *testing.T) {
	const limit int64 = 64
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxMessageSize = limit
	})
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, alice, chat.EventUserList)
	sendFrame(t, bob, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, bob, chat.EventUserList)

	oversized := strings.Repeat("A", int(limit)+10)
	err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"chatMessage","message":"`+oversized+`"}`))
	if err != nil && !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("Unexpected error writing oversized message: %v", err)
	}

	ev := readSkipping(t, bob)
	assert.Equal(t, chat.EventUserLeft, ev.Type, "oversized frame should drop the sender, not reach the room")
}

func TestWebSocketRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: 10 * time.Second}
	})
	alice := env.connect(t, "alice")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, alice, chat.EventUserList)

	sendFrame(t, alice, InboundMessage{Type: InboundChatMessage, Message: "one", ID: "1"})
	sendFrame(t, alice, InboundMessage{Type: InboundChatMessage, Message: "two", ID: "2"})

	ev := readSkipping(t, alice)
	assert.Equal(t, chat.EventMessage, ev.Type)
	ev = readSkipping(t, alice)
	require.Equal(t, chat.EventError, ev.Type)
	var payload chat.ErrorPayload
	ev.decode(t, &payload)
	assert.Equal(t, "rate_limited", payload.Code)

	sendFrame(t, alice, InboundMessage{Type: InboundLogout})
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
	require.Eventually(t, func() bool { return len(env.engine.ActiveUsers()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketLeaveRoomStopsMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	sendFrame(t, alice, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, alice, chat.EventUserList)
	sendFrame(t, bob, InboundMessage{Type: InboundJoinRoom, Room: "lobby"})
	readUntil(t, bob, chat.EventUserList)
	readUntil(t, alice, chat.EventUserJoined)

	sendFrame(t, bob, InboundMessage{Type: InboundLeaveRoom})
	ev := readSkipping(t, alice)
	require.Equal(t, chat.EventUserLeft, ev.Type)

	sendFrame(t, alice, InboundMessage{Type: InboundChatMessage, Message: "anyone?", ID: "m2"})
	readUntil(t, alice, chat.EventMessage)
	expectNoEvent(t, bob, 200*time.Millisecond)
}

package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// TestPageHandler serves an HTML page for trying the chat by hand: log in,
// connect, join a room and exchange messages.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Warn("error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"], input[type="password"] { width: 160px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
        #users, #online { color: #555; }
    </style>
</head>
<body>
    <h1>Room Chat Test</h1>

    <div class="row">
        <input type="text" id="username" placeholder="username">
        <input type="password" id="password" placeholder="password">
        <button onclick="login()">Log in &amp; connect</button>
        <button onclick="logout()">Log out</button>
    </div>
    <div class="row">
        <input type="text" id="room" placeholder="room" value="lobby">
        <button onclick="joinRoom()">Join</button>
        <button onclick="leaveRoom()">Leave</button>
    </div>
    <div class="row">Room: <span id="users"></span></div>
    <div class="row">Online: <span id="online"></span></div>

    <div id="messages"></div>
    <div class="row">
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        let ws = null;
        const seen = new Set();
        const messagesDiv = document.getElementById('messages');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        async function login() {
            const resp = await fetch('/api/login', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value,
                }),
            });
            const body = await resp.json();
            if (!resp.ok) {
                addLine('Login failed: ' + body.message, 'red');
                return;
            }
            connect(body.token);
        }

        function connect(token) {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + encodeURIComponent(token));
            ws.onopen = () => addLine('Connected');
            ws.onclose = () => { addLine('Connection closed'); ws = null; };
            ws.onmessage = (event) => handle(JSON.parse(event.data));
        }

        function handle(ev) {
            const d = ev.data;
            switch (ev.type) {
            case 'message':
                if (seen.has(d.id)) { return; }
                seen.add(d.id);
                addLine(d.username + ': ' + d.message, 'green');
                break;
            case 'userJoined':
                addLine(d.username + ' joined (' + d.count + ')');
                break;
            case 'userLeft':
                addLine(d.username + ' left (' + d.count + ')');
                break;
            case 'userList':
                document.getElementById('users').textContent = d.room + ': ' + d.users.join(', ');
                break;
            case 'activeUsers':
                document.getElementById('online').textContent = d.map(u => u.username).join(', ');
                break;
            case 'error':
                addLine('Error: ' + d.message, 'red');
                break;
            }
        }

        function send(frame) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(frame));
            }
        }

        function joinRoom() { send({ type: 'joinRoom', room: document.getElementById('room').value }); }
        function leaveRoom() { send({ type: 'leaveRoom' }); }
        function logout() { send({ type: 'logout' }); }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const text = input.value.trim();
            if (!text) { return; }
            const id = Date.now().toString(36) + Math.random().toString(36).slice(2);
            seen.add(id);
            addLine('You: ' + text, 'blue');
            send({ type: 'chatMessage', message: text, id: id });
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`

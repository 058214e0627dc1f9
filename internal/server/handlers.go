// Package server exposes HTTP handlers, including authenticated WebSocket
// upgrades, the account and room REST API, health checks, and the built-in
// test page.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// UserDirectory is the part of the user store the REST API reads and prunes.
type UserDirectory interface {
	List(ctx context.Context) ([]store.User, error)
	Delete(ctx context.Context, id string) error
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	hub    *Hub
	engine *chat.Engine
	auth   *auth.Service
	users  UserDirectory
	logger *slog.Logger
}

// NewAPI creates the HTTP handler set.
func NewAPI(hub *Hub, engine *chat.Engine, authService *auth.Service, users UserDirectory, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		hub:    hub,
		engine: engine,
		auth:   authService,
		users:  users,
		logger: logger,
	}
}

// WebSocketHandler authenticates the request, upgrades it to a WebSocket and
// hands the resulting client to the hub. The token is checked before the
// upgrade, so a refused connection never reaches the engine.
func (a *API) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	ident, err := a.engine.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		a.logger.Warn("websocket authentication failed", "remote_addr", r.RemoteAddr, "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, a.hub, ident, r.RemoteAddr)
	if !a.hub.Register(client) {
		client.logger.Warn("hub is shutting down; refusing connection")
		client.closeConnection()
	}
}

// RegisterHandler creates a user account.
func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}

	a.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

// LoginHandler exchanges a username and password for a bearer token.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Username and password are required")
		return
	}

	session, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListUsersHandler returns every registered user.
func (a *API) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.List(r.Context())
	if err != nil {
		a.logger.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list users")
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = newUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteUserHandler removes a user account. Tokens issued to it stop
// verifying immediately; live connections are left to end on their own.
func (a *API) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		a.logger.Error("failed to delete user", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete user")
		return
	}

	caller, _ := identityFrom(r.Context())
	a.logger.Info("user deleted", "user_id", id, "by", caller.Username)
	w.WriteHeader(http.StatusNoContent)
}

// RoomsHandler lists the live rooms and their member counts.
func (a *API) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Rooms())
}

// RoomUsersHandler lists the members of one room.
func (a *API) RoomUsersHandler(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	users, ok := a.engine.RoomMembers(room)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Room not found")
		return
	}
	writeJSON(w, http.StatusOK, RoomUsersResponse{Room: room, Users: users, Count: len(users)})
}

// ActiveUsersHandler returns the usernames currently online.
func (a *API) ActiveUsersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.ActiveUsers())
}

func (a *API) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, store.ErrUserExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		a.logger.Error("auth request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

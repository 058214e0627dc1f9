// Package server wires HTTP handlers into a ServeMux for the room chat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func SetupRoutes(api *API) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("/ws", api.WebSocketHandler)

	mux.HandleFunc("POST /api/register", api.RegisterHandler)
	mux.HandleFunc("POST /api/login", api.LoginHandler)
	mux.HandleFunc("GET /api/users", api.requireAuth(api.ListUsersHandler))
	mux.HandleFunc("DELETE /api/users/{id}", api.requireAuth(api.DeleteUserHandler))

	mux.HandleFunc("GET /api/rooms", api.RoomsHandler)
	mux.HandleFunc("GET /api/rooms/{room}/users", api.RoomUsersHandler)
	mux.HandleFunc("GET /api/presence", api.ActiveUsersHandler)
	return mux
}

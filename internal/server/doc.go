// Package server implements the HTTP and WebSocket transport for the room
// chat service.
//
// Each WebSocket connection is a Client whose inbound frames are decoded and
// applied to the chat engine, and which receives the engine's events through
// its send channel. The Hub owns the set of live clients and unwinds them
// from the engine when they go away. The REST handlers cover accounts and
// read-only views of rooms and presence.
package server

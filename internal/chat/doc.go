// Package chat implements the session, presence and room coordination engine.
//
// The Engine maps authenticated connections to rooms, keeps membership and
// the active-identity set consistent under concurrent joins, leaves and
// disconnects, and fans events out to the right set of connections. It has
// no knowledge of the transport: connections are identified by opaque ids
// and receive events through the Sink interface.
package chat

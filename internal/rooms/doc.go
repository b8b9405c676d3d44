// Package rooms holds the room coordination state for the chat server.
//
// A Registry tracks live connections and the identity bound to each one, a
// Store owns the active rooms and their membership, an Allocator hands out
// invite codes, and Admission validates the create and join paths on top of
// them. Nothing in this package knows about the transport: outbound delivery
// goes through the Sink each connection is registered with.
package rooms

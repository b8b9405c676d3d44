// Package server implements the HTTP and WebSocket layer of the chat service.
//
// Inbound frames flow from a Client's read pump into the Dispatcher, which
// runs admissions and membership changes against the rooms package and hands
// the resulting frames to the Router for delivery. The Hub owns client
// goroutines and runs the disconnect cascade when a connection goes away.
package server

// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// health check, ping, WebSocket endpoint, room listing and metrics.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ping", PingHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/rooms", s.RoomsHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

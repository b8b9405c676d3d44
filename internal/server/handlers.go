// Package server exposes HTTP handlers: WebSocket upgrades, health checks and
// the operator room listing.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection, and hands the new
// Client to the hub, which starts its read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		s.log.Info("rejecting connection during shutdown", "remote", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

// PingHandler answers pong.
func PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "pong")
}

// RoomSummary is one entry of the /rooms listing. Credentials are never listed.
type RoomSummary struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// RoomsHandler lists the active rooms and their member counts.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries := s.store.Rooms()
	out := make([]RoomSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, RoomSummary{Name: sum.Name, Members: sum.Members})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Error("encode room listing", "err", err)
	}
}

package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// the new client to the hub, which starts its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, s.inbound, s.cfg, r.RemoteAddr)
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

type stats struct {
	Clients    int `json:"clients"`
	Groups     int `json:"groups"`
	Associated int `json:"associated"`
}

// StatsHandler reports live connection and group counts.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stats{
		Clients:    s.hub.ClientCount(),
		Groups:     len(s.registry.Groups()),
		Associated: s.registry.Len(),
	})
}

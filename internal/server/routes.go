package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures the router with the health check, the WebSocket
// endpoint, live stats and the JSON API.
func SetupRoutes(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler)
	r.HandleFunc("/ws", s.WebSocketHandler)
	r.HandleFunc("/stats", s.StatsHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.RegisterHandler).Methods(http.MethodPost)
	api.HandleFunc("/login", s.LoginHandler).Methods(http.MethodPost)
	api.HandleFunc("/groups", s.ListGroupsHandler).Methods(http.MethodGet)
	api.HandleFunc("/groups", s.CreateGroupHandler).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/join", s.JoinGroupHandler).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/requests", s.PendingRequestsHandler).Methods(http.MethodGet)
	api.HandleFunc("/groups/{groupId}/approve", s.ApproveHandler).Methods(http.MethodPost)
	api.HandleFunc("/groups/{groupId}/messages", s.MessagesHandler).Methods(http.MethodGet)
	return r
}

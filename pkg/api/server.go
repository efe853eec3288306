// Package api exposes the backup and restore operations over HTTP.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/galenelijah/USC-PIS-sub001/pkg/backup"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/restore"
	"github.com/galenelijah/USC-PIS-sub001/pkg/scheduler"
)

// Server wires the API handlers onto a mux.
type Server struct {
	mux *http.ServeMux
}

// NewServer assembles handlers for all backup, schedule and restore routes.
func NewServer(store types.Store, manager *backup.Manager, sched *scheduler.Scheduler, planner *restore.Planner, executor *restore.Executor) *Server {
	mux := http.NewServeMux()

	NewBackupsHandler(store, manager).RegisterRoutes(mux)
	NewSchedulesHandler(store, sched).RegisterRoutes(mux)
	NewRestoreHandler(store, planner, executor).RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return &Server{mux: mux}
}

// Handler returns the assembled route handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the API server on the given port. It blocks until the server
// stops.
func (s *Server) Start(port string) error {
	log.Printf("Starting API server on port %s", port)
	return http.ListenAndServe(":"+port, s.mux)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode API response: %v", err)
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

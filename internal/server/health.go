package server

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Error  string `json:"error,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the store is reachable, 503 Service Unavailable otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
	}

	if err := s.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Store = "connected"
	writeJSON(w, http.StatusOK, response)
}

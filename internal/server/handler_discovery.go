package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "coloop admin API",
		Version:     "v1",
		Description: "Read-only view of the script scheduler and its step journal",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/scheduler", []string{"GET"}, "Live scheduler queues, tokens, counters and offload backpressure"},
			{"/api/v1/runs", []string{"GET"}, "Journaled runs, newest first. Accepts ?state, ?limit, ?offset"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run summary"},
			{"/api/v1/runs/{id}/steps", []string{"GET"}, "Step records of a run. Accepts ?status, ?limit, ?offset"},
		},
	})
}

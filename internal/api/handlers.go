package api

import (
	"net/http"

	"github.com/bytedance/sonic"
)

// StatusResponse is the body of /healthz and /readyz.
type StatusResponse struct {
	Status string `json:"status"` // ok | not_ready
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

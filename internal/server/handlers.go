package server

import (
	"net/http"

	"go.uber.org/zap"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness: the dataset must load, the models must
// be present and the database must answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"dataset":  "ok",
		"models":   "ok",
		"database": "ok",
	}
	ready := true

	if _, err := s.dataset.Stores(); err != nil {
		components["dataset"] = err.Error()
		ready = false
	}
	if s.models == nil {
		components["models"] = "not loaded"
		ready = false
	}
	if err := s.store.Ping(r.Context()); err != nil {
		components["database"] = err.Error()
		ready = false
	}

	status := http.StatusOK
	body := map[string]interface{}{"status": "ok", "components": components}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	writeJSON(w, status, body)
}

// handleStores lists the distinct store ids present in the dataset.
func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	ids, err := s.dataset.Stores()
	if err != nil {
		s.log.Error("stores listing failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to load dataset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stores": ids,
		"count":  len(ids),
	})
}

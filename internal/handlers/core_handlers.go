package handlers

import (
	"net/http"
	"time"

	"thoth/internal/engine/actors"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}

		result, err := s.Engine.Ask(s.Engine.GetPostActor(), &actors.GetCountsMsg{})
		if err != nil {
			writeError(w, err)
			return
		}

		requests, errors, uptime, _ := s.Metrics.Snapshot()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "healthy",
			"post_count":  result.(int),
			"requests":    requests,
			"errors":      errors,
			"uptime":      uptime.Round(time.Second).String(),
			"server_time": time.Now(),
		})
	}
}

package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total           int            `json:"total"`
	ByKind          map[string]int `json:"by_kind"`
	Released        int            `json:"released"`
	ContextsDropped int            `json:"contexts_dropped"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetEventStats(r.Context())
	if err != nil {
		s.logger.Error("get event stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:           stats.Total,
		ByKind:          stats.CountByKind,
		Released:        stats.Released,
		ContextsDropped: stats.ContextsDropped,
	})
}

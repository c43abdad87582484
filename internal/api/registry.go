package api

import (
	"errors"
	"net/http"

	"github.com/seantiz/gradbridge/internal/engine"
	"github.com/seantiz/gradbridge/internal/model"
)

// registryResponse is the JSON response for GET /v1/registry.
type registryResponse struct {
	State          string              `json:"state"`
	Pools          map[string][]string `json:"pools"`
	Contexts       int                 `json:"contexts"`
	LastContext    int64               `json:"last_context"`
	ForwardRunner  bool                `json:"forward_runner"`
	BackwardRunner bool                `json:"backward_runner"`
	Session        *model.Session      `json:"session,omitempty"`
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Registry().Stats()
	s.writeJSON(w, http.StatusOK, registryResponse{
		State:          stats.State,
		Pools:          stats.Pools,
		Contexts:       stats.Contexts,
		LastContext:    stats.LastContext,
		ForwardRunner:  stats.ForwardRunner,
		BackwardRunner: stats.BackwardRunner,
		Session:        s.engine.Session(),
	})
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.UnloadModel(r.Context())
	if errors.Is(err, engine.ErrNoModel) {
		unloadsTotal.WithLabelValues(unloadNoModel).Inc()
		s.writeError(w, http.StatusConflict, "no model loaded")
		return
	}
	if err != nil {
		s.logger.Error("unload model", "error", err)
		if ev == nil {
			unloadsTotal.WithLabelValues(unloadFailed).Inc()
			s.writeError(w, http.StatusInternalServerError, "failed to unload model")
			return
		}
		// The registry is already torn down; only the journal write failed.
		unloadsTotal.WithLabelValues(unloadJournalError).Inc()
		s.writeJSON(w, http.StatusOK, ev)
		return
	}

	unloadsTotal.WithLabelValues(unloadOK).Inc()
	s.writeJSON(w, http.StatusOK, ev)
}

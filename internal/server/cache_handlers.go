package server

import (
	"net/http"
)

// handleSweepCache handles POST /api/cache/sweep
func (s *Server) handleSweepCache(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cfg.Cache.SweepExpired(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Cache sweep failed")
		s.writeError(w, http.StatusInternalServerError, "cache sweep failed")
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// handleClearCache handles DELETE /api/cache
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Cache.ClearAll(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Cache clear failed")
		s.writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
	})
}

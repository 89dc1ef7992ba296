package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/statussync"
)

// handleListStatus handles GET /api/status
func (s *Server) handleListStatus(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.cfg.Status.Snapshots())
}

// handleGetStatus handles GET /api/status/{kind}/{id}
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	sync, ok := s.lookupWatch(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, sync.Snapshot())
}

// handleMountStatus handles POST /api/status/{kind}/{id}/mount?merchant=
func (s *Server) handleMountStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := statussync.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	merchantID := r.URL.Query().Get("merchant")
	if merchantID == "" {
		merchantID = s.cfg.MerchantID
	}
	if merchantID == "" {
		s.writeError(w, http.StatusBadRequest, "merchant is required")
		return
	}

	sync, err := s.cfg.Status.Mount(r.Context(), kind, merchantID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, statussync.ErrUnknownKind) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, statussync.ErrMountInterrupted) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("Failed to mount status watch")
		s.writeError(w, http.StatusInternalServerError, "failed to mount status watch")
		return
	}

	s.respond(w, http.StatusOK, sync.Snapshot())
}

// handleCheckStatus handles POST /api/status/{kind}/{id}/check.
// Merchant-status failures were already handed to the enforcer by the synchronizer.
func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	sync, ok := s.lookupWatch(w, r)
	if !ok {
		return
	}

	snap, err := sync.CheckStatus(r.Context())
	if err == nil {
		s.respond(w, http.StatusOK, snap)
		return
	}

	if errors.Is(err, statussync.ErrNotMounted) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if statusErr, ok := merchantstatus.FromError(err); ok {
		s.writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  statusErr.Message,
			"code":   statusErr.Kind,
			"policy": statusErr.Policy,
		})
		return
	}
	s.writeError(w, http.StatusBadGateway, "status check failed")
}

// handleUnmountStatus handles DELETE /api/status/{kind}/{id}
func (s *Server) handleUnmountStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := statussync.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if !s.cfg.Status.Unmount(r.Context(), kind, id) {
		s.writeError(w, http.StatusNotFound, "not watched")
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"kind":      kind,
		"entity_id": id,
		"unmounted": true,
	})
}

func (s *Server) lookupWatch(w http.ResponseWriter, r *http.Request) (*statussync.Synchronizer, bool) {
	kind, err := statussync.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	sync, ok := s.cfg.Status.Get(kind, chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not watched")
		return nil, false
	}
	return sync, true
}

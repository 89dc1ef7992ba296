package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/query"
)

func queryOptions(r *http.Request) query.Options {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return query.Options{Force: force}
}

// handleListOrders handles GET /api/orders?status=&force=
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.cfg.Orders.List(r.Context(), r.URL.Query().Get("status"), queryOptions(r))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orders)
}

// handleGetOrder handles GET /api/orders/{id}
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.cfg.Orders.Get(r.Context(), chi.URLParam(r, "id"), queryOptions(r))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, order)
}

// handleListDeposits handles GET /api/deposits?status=&force=
func (s *Server) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := s.cfg.Deposits.List(r.Context(), r.URL.Query().Get("status"), queryOptions(r))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, deposits)
}

// handleGetDeposit handles GET /api/deposits/{id}
func (s *Server) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	deposit, err := s.cfg.Deposits.Get(r.Context(), chi.URLParam(r, "id"), queryOptions(r))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, deposit)
}

// handleGetProfile handles GET /api/profile?force=
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.cfg.Profile.Get(r.Context(), queryOptions(r))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, profile)
}

// writeUpstreamError maps a merchant API failure onto a response.
// Merchant-status failures are handed to the enforcer and returned with their policy.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if statusErr, ok := merchantstatus.FromError(err); ok {
		if s.cfg.Enforcer != nil {
			s.cfg.Enforcer.Handle(r.Context(), statusErr)
		}
		s.writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  statusErr.Message,
			"code":   statusErr.Kind,
			"policy": statusErr.Policy,
		})
		return
	}

	var httpErr merchantstatus.HTTPError
	switch {
	case errors.As(err, &httpErr) && httpErr.HTTPStatus() == http.StatusNotFound:
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &httpErr) && httpErr.HTTPStatus() == http.StatusUnauthorized:
		s.writeError(w, http.StatusUnauthorized, "merchant API rejected the credentials")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "merchant API timed out")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Merchant API request failed")
		s.writeError(w, http.StatusBadGateway, "merchant API request failed")
	}
}

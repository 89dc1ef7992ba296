// Package profile serves the merchant profile through the TTL cache and
// applies the merchant-status gate to every backend response.
package profile

import (
	"context"
	"errors"
	"net/http"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/rs/zerolog"
)

// Transport loads the profile from the backend
type Transport interface {
	GetProfile(ctx context.Context) (*domain.MerchantProfile, error)
}

// Service provides cached access to the merchant profile
type Service struct {
	transport Transport
	q         *query.Query[domain.MerchantProfile]
	log       zerolog.Logger
}

// NewService creates a new profile service
func NewService(transport Transport, cache query.Cache, log zerolog.Logger) *Service {
	log = log.With().Str("service", "profile").Logger()
	return &Service{
		transport: transport,
		q:         query.New[domain.MerchantProfile](cache, "profile", clientdata.TTLProfile, log),
		log:       log,
	}
}

// Get returns the merchant profile.
//
// A blocked or inactive account yields *merchantstatus.Error and clears the cached
// profile. A plain 401/403 falls back to the last cached profile, even if expired.
func (s *Service) Get(ctx context.Context, opts query.Options) (domain.MerchantProfile, error) {
	p, err := s.q.Fetch(ctx, "", opts, s.load)
	if err == nil {
		return p, nil
	}

	var statusErr *merchantstatus.Error
	if errors.As(err, &statusErr) && statusErr.IsPolicyError() {
		s.evict(ctx)
		return domain.MerchantProfile{}, statusErr
	}

	var httpErr merchantstatus.HTTPError
	if !errors.As(err, &httpErr) {
		return domain.MerchantProfile{}, err
	}
	code := httpErr.HTTPStatus()
	if code != http.StatusUnauthorized && code != http.StatusForbidden {
		return domain.MerchantProfile{}, err
	}

	if cached, found := s.q.Stale(ctx, ""); found {
		s.log.Warn().Int("status", code).Msg("Profile request denied, serving cached profile")
		return cached, nil
	}
	if generic, ok := merchantstatus.Classify(code, httpErr.ResponseBody()); ok {
		return domain.MerchantProfile{}, generic
	}
	return domain.MerchantProfile{}, err
}

func (s *Service) load(ctx context.Context) (domain.MerchantProfile, error) {
	p, err := s.transport.GetProfile(ctx)
	if err != nil {
		var httpErr merchantstatus.HTTPError
		if errors.As(err, &httpErr) {
			if statusErr, ok := merchantstatus.Classify(httpErr.HTTPStatus(), httpErr.ResponseBody()); ok && statusErr.IsPolicyError() {
				return domain.MerchantProfile{}, statusErr
			}
		}
		return domain.MerchantProfile{}, err
	}
	if statusErr, ok := merchantstatus.ClassifyStatus(p.Status); ok {
		return domain.MerchantProfile{}, statusErr
	}
	return *p, nil
}

func (s *Service) evict(ctx context.Context) {
	if err := s.q.Invalidate(ctx, ""); err != nil {
		s.log.Warn().Err(err).Msg("Failed to evict cached profile")
	}
}

// Invalidate drops the cached profile
func (s *Service) Invalidate(ctx context.Context) error {
	return s.q.Invalidate(ctx, "")
}

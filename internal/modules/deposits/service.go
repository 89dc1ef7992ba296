// Package deposits serves merchant deposits through the TTL cache.
package deposits

import (
	"context"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/rs/zerolog"
)

// Transport loads deposits from the backend
type Transport interface {
	ListDeposits(ctx context.Context, status string) ([]domain.Deposit, error)
	GetDeposit(ctx context.Context, id string) (*domain.Deposit, error)
}

// Service provides cached access to deposits
type Service struct {
	transport Transport
	list      *query.Query[[]domain.Deposit]
	single    *query.Query[domain.Deposit]
}

// NewService creates a new deposits service
func NewService(transport Transport, cache query.Cache, log zerolog.Logger) *Service {
	log = log.With().Str("service", "deposits").Logger()
	return &Service{
		transport: transport,
		list:      query.New[[]domain.Deposit](cache, "deposits", clientdata.TTLDeposits, log),
		single:    query.New[domain.Deposit](cache, "deposit", clientdata.TTLDeposit, log),
	}
}

// List returns the deposits with the given status; empty means all.
func (s *Service) List(ctx context.Context, status string, opts query.Options) ([]domain.Deposit, error) {
	if status == "" {
		status = "all"
	}
	return s.list.Fetch(ctx, status, opts, func(ctx context.Context) ([]domain.Deposit, error) {
		return s.transport.ListDeposits(ctx, status)
	})
}

// Get returns a single deposit
func (s *Service) Get(ctx context.Context, id string, opts query.Options) (domain.Deposit, error) {
	return s.single.Fetch(ctx, id, opts, func(ctx context.Context) (domain.Deposit, error) {
		deposit, err := s.transport.GetDeposit(ctx, id)
		if err != nil {
			return domain.Deposit{}, err
		}
		return *deposit, nil
	})
}

// Invalidate drops the cached deposit so the next read is fresh
func (s *Service) Invalidate(ctx context.Context, id string) error {
	return s.single.Invalidate(ctx, id)
}

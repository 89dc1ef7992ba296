// Package orders serves merchant orders through the TTL cache.
package orders

import (
	"context"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/rs/zerolog"
)

// Transport loads orders from the backend
type Transport interface {
	ListOrders(ctx context.Context, status string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

// Service provides cached access to orders
type Service struct {
	transport Transport
	list      *query.Query[[]domain.Order]
	single    *query.Query[domain.Order]
	log       zerolog.Logger
}

// NewService creates a new orders service
func NewService(transport Transport, cache query.Cache, log zerolog.Logger) *Service {
	return &Service{
		transport: transport,
		list:      query.New[[]domain.Order](cache, "orders", clientdata.TTLOrders, log),
		single:    query.New[domain.Order](cache, "order", clientdata.TTLOrder, log),
		log:       log.With().Str("service", "orders").Logger(),
	}
}

func normalizeStatus(status string) string {
	if status == "" {
		return "all"
	}
	return status
}

// List returns the orders with the given status; empty means all.
func (s *Service) List(ctx context.Context, status string, opts query.Options) ([]domain.Order, error) {
	status = normalizeStatus(status)
	return s.list.Fetch(ctx, status, opts, func(ctx context.Context) ([]domain.Order, error) {
		return s.transport.ListOrders(ctx, status)
	})
}

// Get returns a single order
func (s *Service) Get(ctx context.Context, id string, opts query.Options) (domain.Order, error) {
	return s.single.Fetch(ctx, id, opts, func(ctx context.Context) (domain.Order, error) {
		order, err := s.transport.GetOrder(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		return *order, nil
	})
}

// Invalidate drops the cached order so the next read is fresh
func (s *Service) Invalidate(ctx context.Context, id string) error {
	return s.single.Invalidate(ctx, id)
}

// InvalidateList drops the cached list for status
func (s *Service) InvalidateList(ctx context.Context, status string) error {
	return s.list.Invalidate(ctx, normalizeStatus(status))
}

package di

import (
	"context"
	"fmt"

	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/merchantpos/paysync/internal/statussync"
)

type orderGetter interface {
	Get(ctx context.Context, id string, opts query.Options) (domain.Order, error)
}

type depositGetter interface {
	Get(ctx context.Context, id string, opts query.Options) (domain.Deposit, error)
}

// orderPoller polls through the order query, bypassing the cache so the
// fresh status is also written back.
func orderPoller(svc orderGetter) statussync.Poller {
	return statussync.PollerFunc(func(ctx context.Context, id string) (statussync.PollResult, error) {
		o, err := svc.Get(ctx, id, query.Options{Force: true})
		if err != nil {
			return statussync.PollResult{}, pollError("order", id, err)
		}
		return statussync.PollResult{RemoteStatus: o.Status, Amount: o.Amount, Currency: o.Currency}, nil
	})
}

func depositPoller(svc depositGetter) statussync.Poller {
	return statussync.PollerFunc(func(ctx context.Context, id string) (statussync.PollResult, error) {
		d, err := svc.Get(ctx, id, query.Options{Force: true})
		if err != nil {
			return statussync.PollResult{}, pollError("deposit", id, err)
		}
		return statussync.PollResult{RemoteStatus: d.Status, Amount: d.Amount, Currency: d.Currency}, nil
	})
}

// pollError surfaces a 403 as a typed merchant-status error so the enforcer can act on it.
func pollError(kind, id string, err error) error {
	if statusErr, ok := merchantstatus.FromError(err); ok {
		return fmt.Errorf("poll %s %s: %w", kind, id, statusErr)
	}
	return fmt.Errorf("poll %s %s: %w", kind, id, err)
}

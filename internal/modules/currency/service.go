// Package currency converts order amounts to USD using a rate table refreshed once per calendar day.
package currency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/merchantpos/paysync/internal/clientdata"
)

const (
	// USD is the conversion target
	USD = "USD"

	tableKeyPrefix = "_exchange_rates_"
	timestampKey   = "_exchange_rates_timestamp"
)

// ErrConversionUnavailable is returned when no rate table can be built for the request.
var ErrConversionUnavailable = errors.New("currency conversion failed")

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// RateFetcher loads a rate table quoted against source
type RateFetcher interface {
	FetchRates(ctx context.Context, source string) (map[string]float64, error)
}

// Cache is the subset of clientdata.Repository used for rate tables
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone that defines a calendar day
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Service converts amounts to USD
type Service struct {
	cache   Cache
	fetcher RateFetcher
	now     func() time.Time
	loc     *time.Location
	log     zerolog.Logger

	group singleflight.Group
	tsMu  sync.Mutex
}

// NewService creates a new currency service
func NewService(cache Cache, fetcher RateFetcher, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		cache:   cache,
		fetcher: fetcher,
		now:     time.Now,
		loc:     time.Local,
		log:     log.With().Str("service", "currency").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertToUSD converts amount from source to USD.
// When the rate table has no USD entry the amount is returned unchanged.
func (s *Service) ConvertToUSD(ctx context.Context, source string, amount decimal.Decimal) (decimal.Decimal, error) {
	cur := normalize(source)
	if cur == USD {
		return amount, nil
	}

	rates, err := s.Rates(ctx, cur)
	if err != nil {
		return decimal.Zero, err
	}

	rate, ok := rates[USD]
	if !ok {
		s.log.Warn().Str("currency", cur).Msg("No USD rate in table, amount left unconverted")
		return amount, nil
	}
	return amount.Mul(decimal.NewFromFloat(rate)), nil
}

// Rates returns today's rate table for cur, fetching it at most once per day.
// A failed fetch yields a 1:1 table that is not persisted.
func (s *Service) Rates(ctx context.Context, cur string) (map[string]float64, error) {
	cur = normalize(cur)
	if !currencyCode.MatchString(cur) {
		return nil, ErrConversionUnavailable
	}
	if cur == USD {
		return map[string]float64{USD: 1}, nil
	}
	if table, ok := s.cached(ctx, cur); ok {
		return table, nil
	}
	table, _ := s.load(ctx, cur)
	return table, nil
}

// Refresh makes sure today's table for cur is cached and reports a failed fetch.
func (s *Service) Refresh(ctx context.Context, cur string) error {
	cur = normalize(cur)
	if !currencyCode.MatchString(cur) {
		return ErrConversionUnavailable
	}
	if cur == USD {
		return nil
	}
	if _, degraded := s.load(ctx, cur); degraded {
		return fmt.Errorf("rate table for %s unavailable", cur)
	}
	return nil
}

type flightResult struct {
	rates    map[string]float64
	degraded bool
}

// load shares one fetch between concurrent callers for the same currency.
func (s *Service) load(ctx context.Context, cur string) (map[string]float64, bool) {
	v, _, _ := s.group.Do(cur, func() (interface{}, error) {
		if table, ok := s.cached(ctx, cur); ok {
			return flightResult{rates: table}, nil
		}

		// the fetch is shared, so one caller's cancellation must not fail the others
		fetched, err := s.fetcher.FetchRates(context.WithoutCancel(ctx), cur)
		if err != nil {
			s.log.Warn().Err(err).Str("currency", cur).Msg("Rate fetch failed, using 1:1 rates")
			return flightResult{rates: degradedTable(cur), degraded: true}, nil
		}

		s.persist(ctx, cur, fetched)
		return flightResult{rates: fetched}, nil
	})
	res := v.(flightResult)
	return res.rates, res.degraded
}

func degradedTable(cur string) map[string]float64 {
	return map[string]float64{USD: 1, cur: 1}
}

// cached returns the table for cur when it was fetched on the current calendar day.
func (s *Service) cached(ctx context.Context, cur string) (map[string]float64, bool) {
	stamps, err := s.timestamps(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read rate timestamps")
		return nil, false
	}
	fetchedAt, ok := stamps[cur]
	if !ok || !s.sameDay(fetchedAt, s.now()) {
		return nil, false
	}

	var table map[string]float64
	found, err := s.cache.Get(ctx, tableKeyPrefix+cur, &table)
	if err != nil {
		s.log.Warn().Err(err).Str("currency", cur).Msg("Failed to read rate table")
		return nil, false
	}
	if !found || len(table) == 0 {
		return nil, false
	}
	return table, true
}

func (s *Service) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.loc).Date()
	by, bm, bd := b.In(s.loc).Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) timestamps(ctx context.Context) (map[string]time.Time, error) {
	stamps := map[string]time.Time{}
	if _, err := s.cache.Get(ctx, timestampKey, &stamps); err != nil {
		return nil, err
	}
	if stamps == nil {
		stamps = map[string]time.Time{}
	}
	return stamps, nil
}

// persist writes the table before its timestamp so a missing timestamp always means "refresh".
func (s *Service) persist(ctx context.Context, cur string, table map[string]float64) {
	if err := s.cache.Set(ctx, tableKeyPrefix+cur, table, clientdata.TTLExchangeRateTable); err != nil {
		s.log.Warn().Err(err).Str("currency", cur).Msg("Failed to cache rate table")
		return
	}

	s.tsMu.Lock()
	defer s.tsMu.Unlock()

	stamps, err := s.timestamps(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read rate timestamps")
		stamps = map[string]time.Time{}
	}
	stamps[cur] = s.now()
	if err := s.cache.Set(ctx, timestampKey, stamps, 0); err != nil {
		s.log.Warn().Err(err).Str("currency", cur).Msg("Failed to record rate timestamp")
	}
}

func normalize(cur string) string {
	return strings.ToUpper(strings.TrimSpace(cur))
}

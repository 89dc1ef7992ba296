package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/kvstore"
	"github.com/merchantpos/paysync/internal/merchantstatus"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type httpErr struct {
	status int
	body   string
}

func (e *httpErr) Error() string        { return fmt.Sprintf("status %d", e.status) }
func (e *httpErr) HTTPStatus() int      { return e.status }
func (e *httpErr) ResponseBody() []byte { return []byte(e.body) }

type fakeTransport struct {
	profile *domain.MerchantProfile
	err     error
	calls   int
}

func (f *fakeTransport) GetProfile(ctx context.Context) (*domain.MerchantProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

type fixture struct {
	svc       *Service
	transport *fakeTransport
	store     kvstore.Store
	now       time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     kvstore.NewMemoryStore(),
		transport: &fakeTransport{profile: &domain.MerchantProfile{MerchantID: "m_1", BusinessName: "Cafe", Status: "ACTIVE"}},
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	repo := clientdata.NewRepository(f.store, zerolog.Nop(), clientdata.WithClock(func() time.Time { return f.now }))
	f.svc = NewService(f.transport, repo, zerolog.Nop())
	return f
}

func (f *fixture) cached(t *testing.T) bool {
	_, found, err := f.store.GetString(context.Background(), "profile")
	require.NoError(t, err)
	return found
}

func TestGet_CachesActiveProfile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.Get(ctx, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Cafe", p.BusinessName)

	_, err = f.svc.Get(ctx, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.transport.calls)
	assert.True(t, f.cached(t))
}

func TestGet_BlockedStatusInBodyIsNotCached(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, query.Options{})
	require.NoError(t, err)

	f.transport.profile.Status = "PIN_BLOCKED"
	_, err = f.svc.Get(ctx, query.Options{Force: true})

	var statusErr *merchantstatus.Error
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, merchantstatus.KindPinBlocked, statusErr.Kind)
	assert.True(t, statusErr.ShouldLogout)
	assert.False(t, f.cached(t), "blocked profile evicts the cache")
}

func TestGet_InactiveErrorBody(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, _ = f.svc.Get(ctx, query.Options{})

	f.transport.err = fmt.Errorf("get profile: %w", &httpErr{status: http.StatusForbidden, body: `{"code":"INACTIVE"}`})
	_, err := f.svc.Get(ctx, query.Options{Force: true})

	var statusErr *merchantstatus.Error
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, merchantstatus.KindInactive, statusErr.Kind)
	assert.False(t, f.cached(t))
}

func TestGet_Generic403ServesExpiredCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Get(ctx, query.Options{})
	require.NoError(t, err)

	f.now = f.now.Add(clientdata.TTLProfile + time.Minute)
	f.transport.err = &httpErr{status: http.StatusForbidden, body: `{"code":"SCOPE_MISSING"}`}

	p, err := f.svc.Get(ctx, query.Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "Cafe", p.BusinessName)
}

func TestGet_Generic403WithoutCache(t *testing.T) {
	f := setup(t)
	f.transport.err = &httpErr{status: http.StatusForbidden, body: `{}`}

	_, err := f.svc.Get(context.Background(), query.Options{})

	var statusErr *merchantstatus.Error
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, merchantstatus.KindGeneric403, statusErr.Kind)
	assert.False(t, statusErr.ShouldLogout)
}

func TestGet_401WithoutCachePropagates(t *testing.T) {
	f := setup(t)
	original := &httpErr{status: http.StatusUnauthorized}
	f.transport.err = original

	_, err := f.svc.Get(context.Background(), query.Options{})
	assert.ErrorIs(t, err, original)
}

func TestGet_401WithCacheFallsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, _ = f.svc.Get(ctx, query.Options{})

	f.transport.err = &httpErr{status: http.StatusUnauthorized}
	p, err := f.svc.Get(ctx, query.Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, "m_1", p.MerchantID)
}

func TestGet_OtherErrorsPropagate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, _ = f.svc.Get(ctx, query.Options{})

	boom := errors.New("connection reset")
	f.transport.err = boom
	_, err := f.svc.Get(ctx, query.Options{Force: true})
	assert.ErrorIs(t, err, boom)
}

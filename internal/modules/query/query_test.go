package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/merchantpos/paysync/internal/clientdata"
	"github.com/merchantpos/paysync/internal/kvstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T) (*Query[item], *clock) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	c := &clock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	repo := clientdata.NewRepository(store, zerolog.Nop(), clientdata.WithClock(c.Now))
	return New[item](repo, "order", 30*time.Second, zerolog.Nop()), c
}

func TestKey(t *testing.T) {
	q, _ := setup(t)
	assert.Equal(t, "order:ord_1", q.Key("ord_1"))
	assert.Equal(t, "order", q.Key(""))
}

func TestFetch_CachesUntilTTL(t *testing.T) {
	q, c := setup(t)
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context) (item, error) {
		calls++
		return item{ID: "ord_1", Value: calls}, nil
	}

	got, err := q.Fetch(ctx, "ord_1", Options{}, load)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)

	c.now = c.now.Add(10 * time.Second)
	got, err = q.Fetch(ctx, "ord_1", Options{}, load)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)
	assert.Equal(t, 1, calls)

	c.now = c.now.Add(21 * time.Second)
	got, err = q.Fetch(ctx, "ord_1", Options{}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)
	assert.Equal(t, 2, calls)
}

func TestFetch_ForceBypassesAndWritesBack(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	calls := 0
	load := func(ctx context.Context) (item, error) {
		calls++
		return item{Value: calls}, nil
	}

	_, _ = q.Fetch(ctx, "x", Options{}, load)
	got, err := q.Fetch(ctx, "x", Options{Force: true}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)

	got, err = q.Fetch(ctx, "x", Options{}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value, "forced result is written back")
	assert.Equal(t, 2, calls)
}

func TestFetch_LoaderErrorPropagatesAndIsNotCached(t *testing.T) {
	q, _ := setup(t)
	ctx := context.Background()
	boom := errors.New("backend down")

	_, err := q.Fetch(ctx, "x", Options{}, func(ctx context.Context) (item, error) {
		return item{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, found := q.Stale(ctx, "x")
	assert.False(t, found)
}

func TestStaleAndInvalidate(t *testing.T) {
	q, c := setup(t)
	ctx := context.Background()
	_, err := q.Fetch(ctx, "x", Options{}, func(ctx context.Context) (item, error) {
		return item{ID: "x", Value: 7}, nil
	})
	require.NoError(t, err)

	c.now = c.now.Add(time.Hour)
	stale, found := q.Stale(ctx, "x")
	require.True(t, found)
	assert.Equal(t, 7, stale.Value)

	require.NoError(t, q.Invalidate(ctx, "x"))
	_, found = q.Stale(ctx, "x")
	assert.False(t, found)
}

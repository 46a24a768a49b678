package store

import (
	"context"
	"os"
	"testing"

	"geo-dash/internal/migrate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 PostgreSQL：设置 PG_TEST_DSN 后运行
func openTestStore(t *testing.T) *Store {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, migrate.EnsureSchema(context.Background(), s.DB()))
	_, err = s.DB().Exec(`DELETE FROM _region_metrics WHERE state='TEST STATE'`)
	require.NoError(t, err)
	return s
}

func TestScopeValidation(t *testing.T) {
	s := AttachDB(nil)
	_, err := s.Metrics(context.Background(), Scope{Level: "district"})
	assert.ErrorIs(t, err, ErrBadScope)
	_, err = s.Delete(context.Background(), Scope{State: "X"}, "a")
	assert.ErrorIs(t, err, ErrBadScope)
	assert.Equal(t, Scope{Level: "district", State: "KERALA"}, Scope{Level: " District ", State: " KERALA "}.norm())
}

func TestMetricsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	k := Scope{Level: "district", State: "TEST STATE"}

	ok, err := s.Insert(ctx, k, "Alpha", 12.5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Insert(ctx, k, "Alpha", 99)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upsert(ctx, k, " Beta ", -3))
	m, err := s.Metrics(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Alpha": 12.5, "Beta": -3}, m)

	v, found, err := s.Get(ctx, k, "Beta")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, -3.0, v)

	list, err := s.List(ctx, k)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Region)

	deleted, err := s.Delete(ctx, k, "Alpha")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, found, err = s.Get(ctx, k, "Alpha")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestViews(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	before, err := s.GetTotals(ctx, "TEST STATE")
	require.NoError(t, err)
	s.IncrViews(ctx, "TEST STATE")
	after, err := s.GetTotals(ctx, "TEST STATE")
	require.NoError(t, err)
	assert.Equal(t, before.Total+1, after.Total)
	assert.Equal(t, before.Today+1, after.Today)
}

package metric

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoReproducible(t *testing.T) {
	d := NewDemo(42)
	req := Request{Level: LevelDistrict, State: "KERALA", Names: []string{"A", "B", "C"}}
	a, err := d.Values(context.Background(), req)
	require.NoError(t, err)
	b, err := d.Values(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 3)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, -50.0)
		assert.Less(t, v, 100.0)
	}
}

func TestDemoSubdistrictRange(t *testing.T) {
	d := NewDemo(42)
	names := make([]string, 200)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('A'+i/26))
	}
	m, err := d.Values(context.Background(), Request{Level: LevelSubdistrict, Names: names})
	require.NoError(t, err)
	for _, v := range m {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 100.0)
	}
}

func TestDemoDuplicateNamesKeepFirstDraw(t *testing.T) {
	d := NewDemo(7)
	one, _ := d.Values(context.Background(), Request{Names: []string{"X"}})
	dup, _ := d.Values(context.Background(), Request{Names: []string{"X", "X"}})
	assert.Equal(t, one["X"], dup["X"])
}

func fixed(m map[string]float64, err error) Source {
	return SourceFunc(func(context.Context, Request) (map[string]float64, error) { return m, err })
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	m, err := Chain{fixed(nil, boom), fixed(map[string]float64{}, nil), fixed(map[string]float64{"A": 1}, nil)}.Values(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1}, m)

	_, err = Chain{fixed(nil, boom)}.Values(ctx, Request{})
	assert.ErrorIs(t, err, boom)

	m, err = Chain{nil, fixed(map[string]float64{}, nil)}.Values(ctx, Request{})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	o := Overlay{Base: fixed(map[string]float64{"A": 1, "B": 2}, nil), Top: fixed(map[string]float64{"B": 20}, nil)}
	m, err := o.Values(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1, "B": 20}, m)

	o.Top = fixed(nil, errors.New("db down"))
	m, err = o.Values(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1, "B": 2}, m)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DEMO_SEED", "9")
	s := FromEnv(nil)
	d, ok := s.(*Demo)
	require.True(t, ok)
	assert.Equal(t, int64(9), d.Seed)
}

package viewport

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestFitContainsInput(t *testing.T) {
	f := NewFitter(DefaultConfig())
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		lon := r.Float64()*300 - 150
		lat := r.Float64()*150 - 75
		w := r.Float64() * 40
		h := r.Float64() * 20
		box := NewBoundingBox(lon, lat, lon+w, lat+h)
		v := f.Fit(box)
		require.Truef(t, v.Bounds.Contains(box), "bounds %+v must contain %+v", v.Bounds, box)
		require.GreaterOrEqual(t, v.Zoom, 1)
		require.LessOrEqual(t, v.Zoom, 15)
	}
}

func TestFitZoom(t *testing.T) {
	f := NewFitter(DefaultConfig())
	cases := []struct {
		name string
		box  BoundingBox
		zoom int
	}{
		{"world clamps to min", World(), 1},
		{"state sized", NewBoundingBox(70, 10, 78, 16), 5},
		{"district sized", NewBoundingBox(77, 28, 78, 29), 8},
		{"very small clamps to max", NewBoundingBox(77, 28, 77.0001, 28.0001), 15},
		{"point", NewBoundingBox(77, 28, 77, 28), 12},
		{"horizontal line", NewBoundingBox(70, 28, 80, 28), 12},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.zoom, f.Fit(c.box).Zoom)
		})
	}
}

func TestFitDegenerateIgnoresPadding(t *testing.T) {
	f := NewFitter(DefaultConfig())
	p := NewBoundingBox(77.2, 28.6, 77.2, 28.6)
	for _, pad := range []float64{0.5, 1, 1.1, 3, 10} {
		v := f.FitWithPadding(p, pad)
		assert.Equal(t, 12, v.Zoom)
		assert.True(t, v.Bounds.Contains(p))
		assert.Greater(t, v.Bounds.Width(), 0.0)
		assert.Greater(t, v.Bounds.Height(), 0.0)
	}
}

func TestFitCenterStable(t *testing.T) {
	f := NewFitter(DefaultConfig())
	boxes := []BoundingBox{
		NewBoundingBox(70, 10, 78, 16),
		NewBoundingBox(88, 21, 92.5, 27),
		NewBoundingBox(60, 20, 80, 25),
		NewBoundingBox(77, 28, 77.5, 28.4),
	}
	for _, b := range boxes {
		first := f.Fit(b)
		second := f.Fit(first.Bounds)
		assert.InDelta(t, first.Center.Lon, second.Center.Lon, eps)
		assert.InDelta(t, first.Center.Lat, second.Center.Lat, eps)
	}
}

func TestFitAllCombinedRegions(t *testing.T) {
	f := NewFitter(DefaultConfig())
	v := f.FitAll([]BoundingBox{
		NewBoundingBox(70, 10, 75, 15),
		NewBoundingBox(74, 12, 78, 16),
	})
	assert.InDelta(t, 74, v.Center.Lon, eps)
	assert.InDelta(t, 13, v.Center.Lat, eps)
	assert.InDelta(t, v.Square.Width(), v.Square.Height(), eps)
	assert.InDelta(t, 8, v.Square.Width(), eps)
	assert.True(t, v.Bounds.Contains(NewBoundingBox(70, 10, 78, 16)))
	assert.InDelta(t, 8.8, v.Bounds.Width(), 1e-6)
}

func TestFitAllEmpty(t *testing.T) {
	f := NewFitter(DefaultConfig())
	v := f.FitAll(nil)
	assert.Equal(t, 1, v.Zoom)
	assert.Equal(t, LonLat{Lon: 78.9629, Lat: 20.5937}, v.Center)
	assert.Equal(t, World(), v.Bounds)
}

func TestFitTinyRegionPadding(t *testing.T) {
	f := NewFitter(DefaultConfig())
	box := NewBoundingBox(77, 28, 77.5, 28.4)
	v := f.Fit(box)
	assert.InDelta(t, 0.5*1.002, v.Bounds.Width(), 1e-9)
	assert.InDelta(t, 0.5*1.002, v.Bounds.Height(), 1e-9)
}

func TestFitSkewWidensLongitude(t *testing.T) {
	f := NewFitter(DefaultConfig())
	box := NewBoundingBox(60, 20, 80, 25)
	v := f.Fit(box)
	assert.InDelta(t, 22, v.Bounds.Height(), 1e-9)
	want := 22 / math.Cos(22.5*math.Pi/180)
	assert.InDelta(t, want, v.Bounds.Width(), 1e-9)
	assert.Greater(t, v.Bounds.Width(), v.Bounds.Height())

	// 宽高比未超过阈值时保持正方形
	v = f.Fit(NewBoundingBox(60, 20, 70, 27))
	assert.InDelta(t, v.Bounds.Width(), v.Bounds.Height(), eps)
}

func TestFitNonFinite(t *testing.T) {
	f := NewFitter(DefaultConfig())
	v := f.Fit(BoundingBox{MinLon: math.NaN(), MinLat: 0, MaxLon: 1, MaxLat: 1})
	assert.Equal(t, f.Fallback(), v)
}

func TestNewBoundingBoxSwaps(t *testing.T) {
	b := NewBoundingBox(78, 16, 70, 10)
	assert.Equal(t, BoundingBox{MinLon: 70, MinLat: 10, MaxLon: 78, MaxLat: 16}, b)
}

func TestBoundingBoxJSON(t *testing.T) {
	b := NewBoundingBox(70, 10, 78, 16)
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"west":70,"south":10,"east":78,"north":16}`, string(data))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VIEWPORT_PADDING", "1.3")
	t.Setenv("VIEWPORT_MAX_ZOOM", "10")
	t.Setenv("VIEWPORT_MIN_ZOOM", "bogus")
	c := ConfigFromEnv()
	assert.Equal(t, 1.3, c.PaddingFactor)
	assert.Equal(t, 10, c.MaxZoom)
	assert.Equal(t, 1, c.MinZoom)

	f := NewFitter(c)
	assert.Equal(t, 10, f.Fit(NewBoundingBox(77, 28, 77.0001, 28.0001)).Zoom)
}

func TestNormalizeClampsPadding(t *testing.T) {
	c := DefaultConfig()
	c.PaddingFactor = 0.5
	c.MaxZoom = 0
	f := NewFitter(c)
	assert.Equal(t, 1.0, f.Config().PaddingFactor)
	assert.Equal(t, f.Config().MinZoom, f.Config().MaxZoom)
}

func TestLayouts(t *testing.T) {
	src := `{
		"andaman & nicobar ": {
			"mapbox_center": {"lat": 10.2, "lon": 93.07},
			"mapbox_zoom": 5,
			"mapbox_bounds": {"west": 89.2, "south": 6.4, "east": 96.8, "north": 14.0}
		}
	}`
	l, err := DecodeLayouts(strings.NewReader(src))
	require.NoError(t, err)
	v, ok := l.Lookup("Andaman & Nicobar")
	require.True(t, ok)
	assert.Equal(t, 5, v.Zoom)
	assert.Equal(t, 93.07, v.Center.Lon)
	assert.Equal(t, 89.2, v.Bounds.MinLon)
	_, ok = l.Lookup("KERALA")
	assert.False(t, ok)

	var buf bytes.Buffer
	require.NoError(t, l.Encode(&buf))
	again, err := DecodeLayouts(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"ANDAMAN & NICOBAR"}, again.States())

	var nilLayouts *Layouts
	_, ok = nilLayouts.Lookup("x")
	assert.False(t, ok)
}

func TestLayoutsFractionalAndOutOfRangeZoom(t *testing.T) {
	src := `{
		"ARUNACHAL PRADESH": {
			"mapbox_center": {"lat": 28.0, "lon": 94.5},
			"mapbox_zoom": 5.5,
			"mapbox_bounds": {"west": 91.5, "south": 26.6, "east": 97.4, "north": 29.5}
		},
		"FAR": {
			"mapbox_center": {"lat": 1, "lon": 2},
			"mapbox_zoom": 40,
			"mapbox_bounds": {"west": 1, "south": 0, "east": 3, "north": 2}
		}
	}`
	l, err := DecodeLayouts(strings.NewReader(src))
	require.NoError(t, err)
	f := NewFitter(DefaultConfig())

	v, ok := l.Lookup("arunachal pradesh")
	require.True(t, ok)
	assert.Equal(t, 6, v.Zoom)
	assert.Equal(t, 6, f.Clamp(v).Zoom)

	v, ok = l.Lookup("FAR")
	require.True(t, ok)
	clamped := f.Clamp(v)
	assert.Equal(t, 15, clamped.Zoom)
	assert.Equal(t, v.Center, clamped.Center)
	assert.Equal(t, v.Bounds, clamped.Bounds)

	assert.Equal(t, 1, f.Clamp(Viewport{Zoom: -3}).Zoom)
}

func TestLoadLayoutsEmptyPath(t *testing.T) {
	l, err := LoadLayouts("")
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

package main

import (
	"path/filepath"
	"testing"

	"geo-dash/internal/viewport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "layouts.json")
	in := viewport.NewLayouts()
	vp := viewport.NewFitter(viewport.DefaultConfig()).Fit(viewport.NewBoundingBox(74.8, 8.2, 77.4, 12.8))
	in.Set("kerala", vp)
	require.NoError(t, write(path, in))

	out, err := viewport.LoadLayouts(path)
	require.NoError(t, err)
	got, ok := out.Lookup("KERALA")
	require.True(t, ok)
	assert.Equal(t, vp.Center, got.Center)
	assert.Equal(t, vp.Zoom, got.Zoom)
	assert.InDelta(t, vp.Bounds.MinLon, got.Bounds.MinLon, 1e-9)
	assert.FileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}

func TestOpenSharedPrefersExplicitAddr(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("LAYOUT_EXPORT_REDIS_ADDR", "")
	assert.Nil(t, openShared())

	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("LAYOUT_EXPORT_REDIS_ADDR", "127.0.0.1:6390")
	t.Setenv("LAYOUT_EXPORT_REDIS_PASS", "s3cret")
	rc := openShared()
	require.NotNil(t, rc)
	defer rc.Close()
	assert.Equal(t, "127.0.0.1:6390", rc.Options().Addr)
	assert.Equal(t, "s3cret", rc.Options().Password)
}

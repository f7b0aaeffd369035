package cadastre

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugWriter_WritesPoints(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDebugWriter(dir, "debug_clean_parcels")
	require.NoError(t, err)
	d.Add(orb.Point{1, 2}, "spike")
	d.Add(orb.Point{3, 4}, "zig-zag")
	d.Close()

	assert.Equal(t, 2, d.Count())
	assert.Equal(t, filepath.Join(dir, "debug_clean_parcels.shp"), d.Path())

	r, err := shp.Open(d.Path())
	require.NoError(t, err)
	defer r.Close()

	var notes []string
	var points []orb.Point
	for r.Next() {
		n, s := r.Shape()
		p, ok := s.(*shp.Point)
		require.True(t, ok)
		points = append(points, orb.Point{p.X, p.Y})
		notes = append(notes, strings.TrimRight(r.ReadAttribute(n, 0), "\x00 "))
	}
	assert.Equal(t, []orb.Point{{1, 2}, {3, 4}}, points)
	assert.Equal(t, []string{"spike", "zig-zag"}, notes)
}

func TestDebugWriter_NilDiscards(t *testing.T) {
	var d *DebugWriter
	d.Add(orb.Point{1, 1}, "ignored")
	d.Close()
	assert.Zero(t, d.Count())
	assert.Empty(t, d.Path())
}

func TestEngine_DebugLayerPerStage(t *testing.T) {
	e := newTestEngine()
	assert.Nil(t, e.debugWriter("clean", NewFeatureSet("parcels")), "disabled without a directory")

	e.Config.Debug.Dir = t.TempDir()
	fs := NewFeatureSet("parcels")
	fs.AddFeatures(feature("A", orb.Polygon{orb.Ring{{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}))
	e.Simplify(fs)

	r, err := shp.Open(filepath.Join(e.Config.Debug.Dir, "debug_simplify_parcels.shp"))
	require.NoError(t, err)
	defer r.Close()
	n := 0
	for r.Next() {
		n++
	}
	assert.Equal(t, 1, n)
}

package cadastre

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), nil)
}

func mustGet(t *testing.T, fs *FeatureSet, id FeatureID) *Feature {
	t.Helper()
	f, ok := fs.Get(id)
	if !ok {
		t.Fatalf("feature %d not found in %s", id, fs.Name)
	}
	return f
}

func TestEngine_Inside(t *testing.T) {
	e := newTestEngine()
	outline := orb.MultiPolygon{square(0, 0, 10)}

	assert.True(t, e.inside(orb.MultiPolygon{square(2, 2, 2)}, outline), "contained")
	assert.True(t, e.inside(orb.MultiPolygon{square(0, 0, 10)}, outline), "equal")
	assert.True(t, e.inside(orb.MultiPolygon{square(6, 0, 5)}, outline), "mostly inside")
	assert.False(t, e.inside(orb.MultiPolygon{square(8, 0, 5)}, outline), "mostly outside")
	assert.False(t, e.inside(orb.MultiPolygon{square(20, 0, 5)}, outline), "disjoint")
}

func TestEngine_EditBufferFlushes(t *testing.T) {
	e := newTestEngine()
	e.Config.BufferSize = 2
	fs := NewFeatureSet("parcels")
	fs.AddFeatures(feature("A", square(0, 0, 1)), feature("B", square(2, 0, 1)), feature("C", square(4, 0, 1)))

	buf := e.newEditBuffer(fs)
	buf.put(1, orb.MultiPolygon{square(0, 0, 2)})
	assert.InDelta(t, 1, polygonArea(mustGet(t, fs, 1).MultiPolygon()), 1e-9, "not flushed yet")
	buf.put(2, orb.MultiPolygon{square(2, 0, 2)})
	assert.InDelta(t, 4, polygonArea(mustGet(t, fs, 1).MultiPolygon()), 1e-9, "flushed at the limit")

	buf.put(3, orb.MultiPolygon{square(4, 0, 2)})
	buf.flush()
	assert.InDelta(t, 4, polygonArea(mustGet(t, fs, 3).MultiPolygon()), 1e-9)
}

func TestEngine_TimedRecordsStage(t *testing.T) {
	e := newTestEngine()
	err := e.timed("noop", func() error { return nil })
	assert.NoError(t, err)
	assert.Len(t, e.Report.Stages, 1)
	assert.Equal(t, "noop", e.Report.Stages[0].Name)
}

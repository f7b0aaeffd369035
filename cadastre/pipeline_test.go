package cadastre

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_EndToEnd(t *testing.T) {
	e := newTestEngine()
	parcels, buildings := sharedWallLayers()
	addresses := NewFeatureSet("addresses")
	addresses.AddFeatures(entrance("AD.P3", orb.Point{35, 1.5}))

	result, err := e.Run(&Layers{Parcels: parcels, Buildings: buildings, Addresses: addresses})

	require.NoError(t, err)
	want := map[string]string{"P2": "P1", "P3": "P1"}
	if diff := cmp.Diff(want, result.Tasks); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, parcels.Len())
	assert.Equal(t, 3, TotalParts(parcels))
	assert.Equal(t, []string{"P1", "P2", "P3"}, localIDs(buildings), "single-class part superseded")
	for _, fs := range []*FeatureSet{parcels, buildings, addresses} {
		for _, f := range fs.Features() {
			assert.Equal(t, "P1", f.Attrs.String(AttrTask), "%s %s", fs.Name, f.LocalID())
		}
	}

	assert.Equal(t, EntranceSnapped, result.Entrances[1])
	p, _ := mustGet(t, addresses, 1).Point()
	assert.Equal(t, orb.Point{35, 2}, p)

	assert.Same(t, e.Report, result.Report)
	assert.Equal(t, 1, e.Report.Get("tasks"))
	assert.Equal(t, 1, e.Report.Layers["parcels"].Features)
	assert.Len(t, e.Report.Stages, 6)
}

func TestRun_WithoutAddresses(t *testing.T) {
	e := newTestEngine()
	parcels, buildings := sharedWallLayers()

	result, err := e.Run(&Layers{Parcels: parcels, Buildings: buildings})

	require.NoError(t, err)
	assert.Nil(t, result.Entrances)
	_, ok := e.Report.Layers["addresses"]
	assert.False(t, ok)
}

func TestRun_SelfIntersectingParcel(t *testing.T) {
	e := newTestEngine()
	parcels := NewFeatureSet("parcels")
	parcels.AddFeatures(
		feature("P1", bowtie(), AttrZone, "001"),
		feature("P2", rect(10, 0, 20, 10), AttrZone, "001"),
	)
	buildings := NewFeatureSet("buildings")
	buildings.AddFeatures(
		feature("P1", rect(8, 4, 10, 6)),
		feature("P2", rect(10, 4, 14, 6)),
	)

	result, err := e.Run(&Layers{Parcels: parcels, Buildings: buildings})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"P1": "P2"}, result.Tasks)
	require.Equal(t, 1, parcels.Len())
	for _, p := range parcels.Features() {
		assert.True(t, e.Kernel.IsValid(p.MultiPolygon()), p.LocalID())
		assert.InDelta(t, 100+290.0/7, polygonArea(p.MultiPolygon()), 0.01)
	}
	assert.Equal(t, 1, e.Report.Get("geom_fixed_parcels"))
	assert.Equal(t, 0, e.Report.Get("merge_refused"))
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing layers", func(t *testing.T) {
		_, err := newTestEngine().Run(&Layers{Parcels: NewFeatureSet("parcels")})
		assert.True(t, IsCode(err, ErrCodeInvalidConfig))
	})

	t.Run("invalid config", func(t *testing.T) {
		e := newTestEngine()
		e.Config.BufferSize = 0
		parcels, buildings := sharedWallLayers()
		_, err := e.Run(&Layers{Parcels: parcels, Buildings: buildings})
		assert.True(t, IsCode(err, ErrCodeInvalidConfig))
	})

	t.Run("empty zone aborts at tasks", func(t *testing.T) {
		e := newTestEngine()
		parcels, buildings := sharedWallLayers()
		parcels.AddFeatures(feature("P4", rect(50, 0, 60, 10)))
		buildings.AddFeatures(feature("P4", rect(52, 2, 58, 8)))

		result, err := e.Run(&Layers{Parcels: parcels, Buildings: buildings})

		require.Error(t, err)
		assert.True(t, IsCode(err, ErrCodeEmptyZone))
		assert.ErrorContains(t, err, "stage tasks")
		require.NotNil(t, result)
		assert.Same(t, e.Report, result.Report)
	})
}

package cadastre

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGEOSKernel_Validity(t *testing.T) {
	k := GEOSKernel{}
	assert.True(t, k.IsValid(orb.MultiPolygon{square(0, 0, 10)}))
	assert.Equal(t, "", k.ValidReason(orb.MultiPolygon{square(0, 0, 10)}))

	bowtie := orb.MultiPolygon{{orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}}
	assert.False(t, k.IsValid(bowtie))
	assert.NotEmpty(t, k.ValidReason(bowtie))

	assert.False(t, k.IsValid(nil), "empty is not valid")
	assert.False(t, k.IsValid(orb.MultiPolygon{{orb.Ring{{0, 0}, {1, 0}, {0, 0}}}}), "degenerate ring")
	assert.False(t, k.IsValid(orb.MultiPolygon{{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}}), "open ring")
}

func TestGEOSKernel_Union(t *testing.T) {
	k := GEOSKernel{}
	u, err := k.Union(
		orb.MultiPolygon{square(0, 0, 10)},
		orb.MultiPolygon{square(10, 0, 10)},
		orb.MultiPolygon{square(50, 0, 5)},
	)
	require.NoError(t, err)
	assert.Len(t, u, 2, "adjacent squares merge, the far one stays apart")
	assert.InDelta(t, 225, planar.Area(u), 1e-9)

	none, err := k.Union()
	assert.NoError(t, err)
	assert.Nil(t, none)

	_, err = k.Union(orb.MultiPolygon{square(0, 0, 1)}, nil)
	assert.True(t, IsCode(err, ErrCodeGeometry))
}

func TestGEOSKernel_Predicates(t *testing.T) {
	k := GEOSKernel{}
	outer := orb.MultiPolygon{square(0, 0, 10)}
	inner := orb.MultiPolygon{square(2, 2, 3)}
	half := orb.MultiPolygon{square(5, 0, 10)}
	far := orb.MultiPolygon{square(50, 50, 1)}

	assert.True(t, k.Contains(outer, inner))
	assert.False(t, k.Contains(inner, outer))
	assert.InDelta(t, math.Sqrt(3200), k.Distance(outer, far), 1e-6)
	assert.Equal(t, 0.0, k.Distance(outer, half))
	assert.True(t, math.IsInf(k.Distance(outer, nil), 1))
	assert.True(t, k.Intersects(outer, half))
	assert.False(t, k.Intersects(outer, far))
	assert.InDelta(t, 50, k.IntersectionArea(outer, half), 1e-9)
	assert.Equal(t, 0.0, k.IntersectionArea(outer, nil))

	rotated := orb.MultiPolygon{{orb.Ring{{10, 0}, {10, 10}, {0, 10}, {0, 0}, {10, 0}}}}
	assert.True(t, k.Equals(outer, rotated))
	assert.False(t, k.Equals(outer, half))
}

func TestGEOSKernel_MakeValid(t *testing.T) {
	k := GEOSKernel{}
	bowtie := orb.MultiPolygon{{orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}}}}
	fixed, err := k.MakeValid(bowtie)
	require.NoError(t, err)
	assert.True(t, k.IsValid(fixed))
	assert.Len(t, fixed, 2, "a bowtie splits into its two lobes")
	assert.InDelta(t, 50, planar.Area(fixed), 1e-9)

	_, err = k.MakeValid(nil)
	assert.True(t, IsCode(err, ErrCodeGeometry))
}

func TestGEOSKernel_ValidityNeverPanics(t *testing.T) {
	k := GEOSKernel{}
	huge := orb.MultiPolygon{{orb.Ring{{0, 0}, {math.MaxFloat64, 0}, {math.MaxFloat64, math.MaxFloat64}, {0, 0}}}}
	nan := orb.MultiPolygon{{orb.Ring{{0, 0}, {math.NaN(), 0}, {1, 1}, {0, 0}}}}
	for _, mp := range []orb.MultiPolygon{huge, nan} {
		assert.NotPanics(t, func() {
			k.IsValid(mp)
			k.ValidReason(mp)
		})
	}
}

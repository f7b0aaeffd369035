package cadastre

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestCornerContext(t *testing.T) {
	th := DefaultConfig().Thresholds
	mp := orb.MultiPolygon{{orb.Ring{{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}}

	straight := cornerContext(mp, VertexRef{0, 0, 1}, th)
	assert.InDelta(t, 180, straight.Angle, 1e-9)
	assert.InDelta(t, 0, straight.Cath, 1e-9)
	assert.False(t, straight.Corner)
	assert.False(t, straight.Acute)

	corner := cornerContext(mp, VertexRef{0, 0, 2}, th)
	assert.InDelta(t, 90, corner.Angle, 1e-9)
	assert.True(t, corner.Corner)

	// nearly straight but displaced beyond the cathetus threshold
	bent := orb.MultiPolygon{{orb.Ring{{0, 0}, {50, 0.5}, {100, 0}, {100, 10}, {0, 10}, {0, 0}}}}
	info := cornerContext(bent, VertexRef{0, 0, 1}, th)
	assert.InDelta(t, 180, info.Angle, 2)
	assert.InDelta(t, 0.5, info.Cath, 1e-6)
	assert.True(t, info.Corner)
}

func TestSpikeContext(t *testing.T) {
	th := DefaultConfig().Thresholds
	mp := orb.MultiPolygon{{orb.Ring{
		{0, 0}, {10, 0}, {10, 10}, {5.05, 10}, {5, 20}, {5, 10}, {0, 10}, {0, 0},
	}}}

	info := spikeContext(mp, VertexRef{0, 0, 4}, th)
	assert.True(t, info.Acute)
	assert.True(t, info.Spike)
	assert.False(t, info.ZigZag)
	assert.Equal(t, VertexRef{0, 0, 5}, info.Near)
	assert.Equal(t, VertexRef{0, 0, 3}, info.Far)
	assert.InDelta(t, 90, info.AngleA, 1e-6)

	square := orb.MultiPolygon{square(0, 0, 10)}
	assert.False(t, spikeContext(square, VertexRef{0, 0, 1}, th).Acute)
}

func TestFoldAngle(t *testing.T) {
	assert.Equal(t, 90.0, foldAngle(90))
	assert.Equal(t, 90.0, foldAngle(270))
	assert.Equal(t, 0.0, foldAngle(360))
	assert.Equal(t, 180.0, foldAngle(180))
}

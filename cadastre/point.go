package cadastre

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// cornerInfo describes the turn at one vertex for the simplifier.
type cornerInfo struct {
	Angle  float64
	Cath   float64
	Acute  bool
	Corner bool
}

// cornerContext measures the vertex at ref against its two neighbours.
// The cathetus is the distance from the vertex to the chord joining them.
func cornerContext(mp orb.MultiPolygon, ref VertexRef, t Thresholds) cornerInfo {
	prev, next := adjacentVertices(mp, ref)
	v, va, vb := vertexAt(mp, ref), vertexAt(mp, prev), vertexAt(mp, next)

	angle := vertexAngle(v, va, vb)
	a := (azimuth(va, v) - azimuth(va, vb)) * math.Pi / 180
	c := math.Abs(planar.Distance(va, v) * math.Sin(a))

	return cornerInfo{
		Angle:  angle,
		Cath:   c,
		Acute:  angle < t.AcuteThr || 360-angle < t.AcuteThr,
		Corner: math.Abs(180-angle) > t.StraightThr || c > t.CathThr,
	}
}

// spikeInfo describes an acute vertex for the invalid-geometry pass.
type spikeInfo struct {
	AngleV   float64
	AngleA   float64
	Near     VertexRef
	Far      VertexRef
	Acute    bool
	ZigZag   bool
	Spike    bool
	Relocate orb.Point
}

// foldAngle maps an angle in [0, 360) onto [0, 180].
func foldAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		return 360 - a
	}
	return a
}

// spikeContext inspects the vertex at ref together with its closer
// neighbour. A zig-zag is an acute vertex whose near neighbour is acute as
// well; a spike is one whose near neighbour lies close to the far edge.
// Relocate is where the near neighbour lands when the spike is flattened:
// the continuation of its other edge meeting the far edge.
func spikeContext(mp orb.MultiPolygon, ref VertexRef, t Thresholds) spikeInfo {
	prev, next := adjacentVertices(mp, ref)
	v := vertexAt(mp, ref)
	near, far := prev, next
	if planar.DistanceSquared(v, vertexAt(mp, next)) < planar.DistanceSquared(v, vertexAt(mp, prev)) {
		near, far = next, prev
	}
	va, vb := vertexAt(mp, near), vertexAt(mp, far)

	nearPrev, nearNext := adjacentVertices(mp, near)
	beyond := nearPrev
	if nearPrev == ref {
		beyond = nearNext
	}
	vc := vertexAt(mp, beyond)

	angleV := foldAngle(vertexAngle(v, va, vb))
	angleA := foldAngle(vertexAngle(va, v, vc))
	c := math.Abs(math.Sin(angleV*math.Pi/180)) * planar.Distance(v, va)

	info := spikeInfo{
		AngleV: angleV,
		AngleA: angleA,
		Near:   near,
		Far:    far,
		Acute:  angleV < t.AcuteInv,
	}
	info.ZigZag = info.Acute && angleA < t.AcuteInv && c < t.DistInv
	info.Spike = info.Acute && !info.ZigZag && math.Abs(180-angleA) > t.StraightThr && c < t.DistInv

	info.Relocate = projectOnSegment(va, v, vb)
	if x, ok := lineIntersection(vc, va, v, vb); ok && onSegment(x, v, vb) {
		info.Relocate = x
	}
	return info
}

// onSegment reports whether x, known to be on line ab, lies strictly
// between a and b.
func onSegment(x, a, b orb.Point) bool {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return false
	}
	t := ((x[0]-a[0])*dx + (x[1]-a[1])*dy) / l2
	return t > 0 && t < 1
}

package cadastre

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// VertexRef addresses a ring vertex of a multipolygon. Index never points at
// the closing duplicate of the ring.
type VertexRef struct {
	Part  int
	Ring  int
	Index int
}

// ringVertices returns the ring without its closing point.
func ringVertices(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// closeRing builds a closed ring from open vertices.
func closeRing(vs []orb.Point) orb.Ring {
	r := make(orb.Ring, 0, len(vs)+1)
	r = append(r, vs...)
	if len(vs) > 0 {
		r = append(r, vs[0])
	}
	return r
}

// distinctVertices counts the distinct points of a ring.
func distinctVertices(r orb.Ring) int {
	seen := make(map[orb.Point]struct{})
	for _, p := range ringVertices(r) {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// vertexAt returns the point at ref.
func vertexAt(mp orb.MultiPolygon, ref VertexRef) orb.Point {
	return ringVertices(mp[ref.Part][ref.Ring])[ref.Index]
}

// adjacentVertices returns the refs before and after ref along its ring.
func adjacentVertices(mp orb.MultiPolygon, ref VertexRef) (VertexRef, VertexRef) {
	n := len(ringVertices(mp[ref.Part][ref.Ring]))
	prev, next := ref, ref
	prev.Index = (ref.Index - 1 + n) % n
	next.Index = (ref.Index + 1) % n
	return prev, next
}

// closestVertex finds the vertex of mp nearest to p.
func closestVertex(mp orb.MultiPolygon, p orb.Point) (ref VertexRef, v orb.Point, sqrDist float64, ok bool) {
	sqrDist = math.Inf(1)
	for i, poly := range mp {
		for j, ring := range poly {
			for k, q := range ringVertices(ring) {
				d := planar.DistanceSquared(p, q)
				if d < sqrDist {
					sqrDist = d
					ref = VertexRef{i, j, k}
					v = q
					ok = true
				}
			}
		}
	}
	return ref, v, sqrDist, ok
}

// closestSegment finds the edge of mp nearest to p. after addresses the end
// vertex of that edge; inserting at after places a vertex on the edge.
func closestSegment(mp orb.MultiPolygon, p orb.Point) (sqrDist float64, closest orb.Point, after VertexRef, ok bool) {
	sqrDist = math.Inf(1)
	for i, poly := range mp {
		for j, ring := range poly {
			vs := ringVertices(ring)
			n := len(vs)
			for k := 0; k < n; k++ {
				a, b := vs[k], vs[(k+1)%n]
				q := projectOnSegment(p, a, b)
				d := planar.DistanceSquared(p, q)
				if d < sqrDist {
					sqrDist = d
					closest = q
					after = VertexRef{i, j, (k + 1) % n}
					ok = true
				}
			}
		}
	}
	return sqrDist, closest, after, ok
}

// projectOnSegment returns the point of segment ab closest to p.
func projectOnSegment(p, a, b orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

// lineIntersection intersects line p1p2 with line p3p4.
func lineIntersection(p1, p2, p3, p4 orb.Point) (orb.Point, bool) {
	d := (p1[0]-p2[0])*(p3[1]-p4[1]) - (p1[1]-p2[1])*(p3[0]-p4[0])
	if math.Abs(d) < 1e-12 {
		return orb.Point{}, false
	}
	a := p1[0]*p2[1] - p1[1]*p2[0]
	b := p3[0]*p4[1] - p3[1]*p4[0]
	return orb.Point{
		(a*(p3[0]-p4[0]) - (p1[0]-p2[0])*b) / d,
		(a*(p3[1]-p4[1]) - (p1[1]-p2[1])*b) / d,
	}, true
}

// cloneMultiPolygon deep-copies mp so that edits do not leak into the store.
func cloneMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	return mp.Clone()
}

// setRing replaces a ring with the given open vertex list.
func setRing(mp orb.MultiPolygon, part, ring int, vs []orb.Point) {
	mp[part][ring] = closeRing(vs)
}

// deleteVertex removes the vertex at ref in place.
func deleteVertex(mp orb.MultiPolygon, ref VertexRef) {
	vs := ringVertices(mp[ref.Part][ref.Ring])
	out := make([]orb.Point, 0, len(vs)-1)
	out = append(out, vs[:ref.Index]...)
	out = append(out, vs[ref.Index+1:]...)
	setRing(mp, ref.Part, ref.Ring, out)
}

// insertVertex inserts p before the vertex at ref in place.
func insertVertex(mp orb.MultiPolygon, ref VertexRef, p orb.Point) {
	vs := ringVertices(mp[ref.Part][ref.Ring])
	out := make([]orb.Point, 0, len(vs)+1)
	out = append(out, vs[:ref.Index]...)
	out = append(out, p)
	out = append(out, vs[ref.Index:]...)
	setRing(mp, ref.Part, ref.Ring, out)
}

// moveVertex relocates the vertex at ref in place.
func moveVertex(mp orb.MultiPolygon, ref VertexRef, p orb.Point) {
	vs := append([]orb.Point(nil), ringVertices(mp[ref.Part][ref.Ring])...)
	vs[ref.Index] = p
	setRing(mp, ref.Part, ref.Ring, vs)
}

// findVertex returns the first ref holding exactly p.
func findVertex(mp orb.MultiPolygon, p orb.Point) (VertexRef, bool) {
	for i, poly := range mp {
		for j, ring := range poly {
			for k, q := range ringVertices(ring) {
				if q == p {
					return VertexRef{i, j, k}, true
				}
			}
		}
	}
	return VertexRef{}, false
}

// azimuth returns the bearing from a to b in degrees, clockwise from north.
func azimuth(a, b orb.Point) float64 {
	return math.Atan2(b[0]-a[0], b[1]-a[1]) * 180 / math.Pi
}

// vertexAngle returns the angle at v between the directions to a and b,
// in [0, 360).
func vertexAngle(v, a, b orb.Point) float64 {
	return math.Abs(azimuth(v, a) - azimuth(v, b))
}

// polygonArea returns the planar area of mp, zero when empty.
func polygonArea(mp orb.MultiPolygon) float64 {
	if len(mp) == 0 {
		return 0
	}
	return planar.Area(mp)
}

func sqr(x float64) float64 {
	return x * x
}

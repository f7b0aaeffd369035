package cadastre

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Clean runs the invalid-geometry pass, the topology pass and the
// simplifier over a polygon layer. removable, when non-nil, limits which
// features may lose parts or be deleted for being too small.
func (e *Engine) Clean(fs *FeatureSet, removable func(*Feature) bool) {
	e.DeleteInvalidGeometries(fs, removable)
	e.Topology(fs)
	e.Simplify(fs)
}

// ExplodeMultiParts splits every multi-part feature matching pred into one
// feature per polygon. The first polygon keeps the original id.
func (e *Engine) ExplodeMultiParts(fs *FeatureSet, pred func(*Feature) bool) {
	changes := make(map[FeatureID]orb.Geometry)
	var added []*Feature
	for _, f := range fs.Features() {
		mp := f.MultiPolygon()
		if len(mp) < 2 || (pred != nil && !pred(f)) {
			continue
		}
		changes[f.ID] = orb.MultiPolygon{mp[0].Clone()}
		for _, poly := range mp[1:] {
			added = append(added, &Feature{
				Geometry: orb.MultiPolygon{poly.Clone()},
				Attrs:    f.Attrs.Clone(),
			})
		}
	}
	fs.ChangeGeometries(changes)
	fs.AddFeatures(added...)
	e.Report.Inc(counter("multipart", fs), len(changes))
	if len(changes) > 0 {
		e.Logger.Info("Exploded multi-part geometries", "layer", fs.Name, "features", len(changes), "added", len(added))
	}
}

// deleteSmallParts returns a copy of the polygons of f without those below
// the minimum area, and how many were dropped.
func (e *Engine) deleteSmallParts(f *Feature, removable func(*Feature) bool) (orb.MultiPolygon, int) {
	mp := f.MultiPolygon()
	if removable != nil && !removable(f) {
		return cloneMultiPolygon(mp), 0
	}
	kept := make(orb.MultiPolygon, 0, len(mp))
	dropped := 0
	for _, poly := range mp {
		if polygonArea(orb.MultiPolygon{poly}) < e.thresholds().MinArea {
			dropped++
			continue
		}
		kept = append(kept, poly.Clone())
	}
	return kept, dropped
}

// makeValid rebuilds a self-intersecting geometry. It fails when the
// kernel cannot produce a valid non-empty polygonal result.
func (e *Engine) makeValid(geom orb.MultiPolygon) (orb.MultiPolygon, bool) {
	repaired, err := e.Kernel.MakeValid(geom)
	if err != nil || len(repaired) == 0 || !e.Kernel.IsValid(repaired) {
		return nil, false
	}
	return repaired, true
}

type ringOutcome int

const (
	ringKept ringOutcome = iota
	ringBroken
)

// DeleteInvalidGeometries removes undersized parts, zig-zags and spikes and
// deletes features whose outer ring cannot be repaired.
func (e *Engine) DeleteInvalidGeometries(fs *FeatureSet, removable func(*Feature) bool) {
	t := e.thresholds()
	dbg := e.debugWriter("invalid", fs)
	defer dbg.Close()

	buf := e.newEditBuffer(fs)
	toMove := make(map[orb.Point]orb.Point)
	var toDelete []FeatureID
	var parts, rings, invalid, fixed, zigzags, spikes, small int

	for _, f := range fs.Features() {
		if f.MultiPolygon() == nil {
			continue
		}
		geom, dropped := e.deleteSmallParts(f, removable)
		parts += dropped
		changed := dropped > 0
		bad := false

		for pi := 0; pi < len(geom) && !bad; pi++ {
			for ri := 0; ri < len(geom[pi]); {
				outcome, zz, sp, edited := e.repairRing(geom, pi, ri, toMove, dbg)
				zigzags += zz
				spikes += sp
				changed = changed || edited
				if outcome == ringKept {
					ri++
					continue
				}
				if ri == 0 {
					bad = true
					break
				}
				geom[pi] = append(geom[pi][:ri:ri], geom[pi][ri+1:]...)
				rings++
				changed = true
			}
		}

		if !bad && len(geom) > 0 && !e.Kernel.IsValid(geom) {
			if repaired, ok := e.makeValid(geom); ok {
				geom, changed = repaired, true
				fixed++
			} else {
				bad = true
			}
		}

		switch {
		case bad:
			toDelete = append(toDelete, f.ID)
			invalid++
			if len(f.MultiPolygon()) > 0 && len(f.MultiPolygon()[0]) > 0 {
				dbg.Add(f.MultiPolygon()[0][0][0], "invalid geometry")
			}
		case len(geom) == 0 || ((removable == nil || removable(f)) && polygonArea(geom) < t.MinArea):
			toDelete = append(toDelete, f.ID)
			small++
		case changed:
			buf.put(f.ID, geom)
		}
	}
	buf.flush()
	fs.DeleteFeatures(toDelete)

	moved := e.propagateMoves(fs, toMove)

	r := e.Report
	r.Inc(counter("geom_parts", fs), parts)
	r.Inc(counter("geom_rings", fs), rings)
	r.Inc(counter("geom_invalid", fs), invalid)
	r.Inc(counter("geom_fixed", fs), fixed)
	r.Inc(counter("geom_small", fs), small)
	r.Inc(counter("vertex_zz", fs), zigzags)
	r.Inc(counter("vertex_spike", fs), spikes)
	r.Inc(counter("vertex_spike_shared", fs), moved)
	e.Logger.Info("Deleted invalid geometries", "layer", fs.Name,
		"parts", parts, "rings", rings, "invalid", invalid, "fixed", fixed, "small", small,
		"zigzags", zigzags, "spikes", spikes)
}

// repairRing walks the ring at (pi, ri) and removes zig-zags and spikes in
// place. It reports ringBroken when removing an acute vertex would leave the
// ring invalid or below the minimum area.
func (e *Engine) repairRing(geom orb.MultiPolygon, pi, ri int, toMove map[orb.Point]orb.Point, dbg *DebugWriter) (outcome ringOutcome, zigzags, spikes int, edited bool) {
	t := e.thresholds()
	for j := 0; j < len(ringVertices(geom[pi][ri])); {
		ring := geom[pi][ri]
		if distinctVertices(ring) < 3 {
			return ringBroken, zigzags, spikes, edited
		}
		ref := VertexRef{pi, ri, j}
		info := spikeContext(geom, ref, t)
		if !info.Acute {
			j++
			continue
		}

		trial := orb.MultiPolygon{orb.Polygon{ring.Clone()}}
		deleteVertex(trial, VertexRef{0, 0, j})
		if !e.Kernel.IsValid(trial) || polygonArea(trial) < t.MinArea {
			return ringBroken, zigzags, spikes, edited
		}
		if len(ringVertices(ring)) < 4 {
			j++
			continue
		}

		v := vertexAt(geom, ref)
		switch {
		case info.ZigZag:
			cand := cloneMultiPolygon(geom)
			first, second := ref, info.Near
			if second.Index > first.Index {
				first, second = second, first
			}
			deleteVertex(cand, first)
			deleteVertex(cand, second)
			if e.Kernel.IsValid(cand) {
				geom[pi] = cand[pi]
				zigzags++
				edited = true
				dbg.Add(v, "zigzag")
				if info.Near.Index < j {
					j--
				}
				continue
			}
			dbg.Add(v, "zigzag refused")
		case info.Spike:
			va := vertexAt(geom, info.Near)
			cand := cloneMultiPolygon(geom)
			moveVertex(cand, info.Near, info.Relocate)
			deleteVertex(cand, ref)
			if e.Kernel.IsValid(cand) {
				geom[pi] = cand[pi]
				spikes++
				edited = true
				toMove[va] = info.Relocate
				dbg.Add(v, "spike")
				if info.Near.Index < j {
					j--
				}
				continue
			}
			dbg.Add(v, "spike refused")
		}
		j++
	}
	return ringKept, zigzags, spikes, edited
}

// propagateMoves relocates vertices moved by spike repairs in every feature
// still holding the old position, keeping shared walls coincident.
func (e *Engine) propagateMoves(fs *FeatureSet, toMove map[orb.Point]orb.Point) int {
	if len(toMove) == 0 {
		return 0
	}
	buf := e.newEditBuffer(fs)
	moved := 0
	for _, f := range fs.Features() {
		mp := f.MultiPolygon()
		if mp == nil {
			continue
		}
		var cand orb.MultiPolygon
		for from, to := range toMove {
			if _, ok := findVertex(mp, from); !ok {
				continue
			}
			if cand == nil {
				cand = cloneMultiPolygon(mp)
			}
			if ref, ok := findVertex(cand, from); ok {
				moveVertex(cand, ref, to)
			}
		}
		if cand != nil && e.Kernel.IsValid(cand) {
			buf.put(f.ID, cand)
			moved++
		}
	}
	buf.flush()
	return moved
}

// Topology snaps near-coincident vertices together and inserts topological
// points where a vertex lies on a neighbour's edge. Only outer ring vertices
// are snapped onto neighbours; holes receive edits but never drive them.
func (e *Engine) Topology(fs *FeatureSet) {
	t := e.thresholds()
	dbg := e.debugWriter("topology", fs)
	defer dbg.Close()

	index := fs.Snapshot()
	geoms := make(map[FeatureID]orb.MultiPolygon, fs.Len())
	features := fs.Features()
	for _, f := range features {
		if mp := f.MultiPolygon(); mp != nil {
			geoms[f.ID] = mp
		}
	}

	buf := e.newEditBuffer(fs)
	nodes := make(map[orb.Point]struct{})
	var closeN, topoN, refused int

	for _, f := range features {
		for _, point := range outerVertices(geoms[f.ID]) {
			if _, done := nodes[point]; done {
				continue
			}
			nodes[point] = struct{}{}
			if !hasPoint(geoms[f.ID], point) {
				// removed by an earlier snap
				continue
			}

			bound := orb.Bound{
				Min: orb.Point{point[0] - t.DistThr, point[1] - t.DistThr},
				Max: orb.Point{point[0] + t.DistThr, point[1] + t.DistThr},
			}
			for _, fid := range index.Search(bound) {
				g, ok := geoms[fid]
				if !ok {
					continue
				}
				res := e.snapToPoint(g, point)
				closeN += res.close
				topoN += res.topo
				refused += res.refused
				if res.refused > 0 {
					dbg.Add(point, "refused")
				}
				if res.geom != nil {
					geoms[fid] = res.geom
					buf.put(fid, res.geom)
					if res.topo > 0 {
						dbg.Add(point, "topo")
					} else {
						dbg.Add(point, "close")
					}
				}
			}
		}
	}
	buf.flush()

	e.Report.Inc(counter("vertex_close", fs), closeN)
	e.Report.Inc(counter("vertex_topo", fs), topoN)
	e.Report.Inc(counter("vertex_refused", fs), refused)
	e.Logger.Info("Topology", "layer", fs.Name, "merged", closeN, "inserted", topoN, "refused", refused)
}

type snapResult struct {
	geom    orb.MultiPolygon
	close   int
	topo    int
	refused int
}

// snapToPoint aligns g with point: neighbouring duplicates of point are
// removed, a close vertex is moved onto it, or point is inserted into the
// nearest edge when it lies on it. Every edit is gated on validity.
func (e *Engine) snapToPoint(g orb.MultiPolygon, point orb.Point) snapResult {
	t := e.thresholds()
	var res snapResult
	ref, _, dv, ok := closestVertex(g, point)
	if !ok {
		return res
	}
	dup2 := sqr(t.DupThr)

	switch {
	case dv == 0:
		work := g
		for side := 0; side < 2; side++ {
			at, found := findVertex(work, point)
			if !found {
				break
			}
			prev, next := adjacentVertices(work, at)
			nb := prev
			if side == 1 {
				nb = next
			}
			if nb == at {
				continue
			}
			if d := planar.DistanceSquared(vertexAt(work, nb), point); d >= dup2 {
				continue
			}
			cand := cloneMultiPolygon(work)
			deleteVertex(cand, nb)
			if e.Kernel.IsValid(cand) {
				work = cand
				res.close++
			} else {
				res.refused++
			}
		}
		if res.close > 0 {
			res.geom = work
		}
	case dv < dup2:
		cand := cloneMultiPolygon(g)
		moveVertex(cand, ref, point)
		if e.Kernel.IsValid(cand) {
			res.geom = cand
			res.close++
		} else {
			res.refused++
		}
	default:
		ds, closest, after, ok := closestSegment(g, point)
		if !ok || ds >= sqr(t.DistThr) {
			return res
		}
		before, _ := adjacentVertices(g, after)
		a, b := vertexAt(g, before), vertexAt(g, after)
		if closest == a || closest == b {
			return res
		}
		angle := vertexAngle(point, a, b)
		if math.Abs(180-angle) > t.StraightThr {
			return res
		}
		cand := cloneMultiPolygon(g)
		insertVertex(cand, after, point)
		if e.Kernel.IsValid(cand) {
			res.geom = cand
			res.topo++
		} else {
			res.refused++
		}
	}
	return res
}

func hasPoint(mp orb.MultiPolygon, p orb.Point) bool {
	_, ok := findVertex(mp, p)
	return ok
}

// outerVertices lists the distinct outer ring vertices of mp in ring order.
func outerVertices(mp orb.MultiPolygon) []orb.Point {
	seen := make(map[orb.Point]struct{})
	var out []orb.Point
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		for _, p := range ringVertices(poly[0]) {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

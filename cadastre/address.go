package cadastre

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MoveAddress conflates the address layer onto the building layer.
// Entrances are classified against the outlines of their reference and, when
// snapped, moved onto a vertex inserted in the outline and in the parts
// sharing that edge. Addresses without buildings, and non-entrance addresses
// with more than one, are deleted.
func (e *Engine) MoveAddress(buildings, addresses *FeatureSet) map[FeatureID]EntranceClass {
	bg := groupBuildings(buildings)
	vo := ParentsPerVertex(bg.outlines)
	geoms := make(map[FeatureID]orb.MultiPolygon)
	current := func(f *Feature) orb.MultiPolygon {
		if g, ok := geoms[f.ID]; ok {
			return g
		}
		return f.MultiPolygon()
	}

	dbg := e.debugWriter("address", addresses)
	defer dbg.Close()

	buf := e.newEditBuffer(buildings)
	classes := make(map[FeatureID]EntranceClass)
	moved := make(map[FeatureID]orb.Geometry)
	specs := make(map[FeatureID]Attributes)
	var toDelete []FeatureID
	var orphan, multiple int

	for _, ad := range addresses.Features() {
		ref := ad.Ref()
		outlines := bg.byRef[ref]
		if len(outlines) == 0 {
			toDelete = append(toDelete, ad.ID)
			orphan++
			continue
		}
		if ad.Attrs.String(AttrSpec) != SpecEntrance {
			if len(outlines) > 1 {
				toDelete = append(toDelete, ad.ID)
				multiple++
			}
			continue
		}
		p, ok := ad.Point()
		if !ok {
			continue
		}

		m := e.matchEntrance(p, outlines, current, vo)
		classes[ad.ID] = m.class
		e.Report.Inc("entrance_"+string(m.class), 1)
		if m.class != EntranceSnapped {
			specs[ad.ID] = Attributes{AttrSpec: string(m.class)}
			continue
		}

		g := cloneMultiPolygon(current(m.outline))
		insertVertex(g, m.after, m.point)
		geoms[m.outline.ID] = g
		buf.put(m.outline.ID, g)
		for _, part := range bg.parts[ref] {
			pg := current(part)
			if at, ok := edgeRef(pg, m.va, m.vb); ok {
				ng := cloneMultiPolygon(pg)
				insertVertex(ng, at, m.point)
				geoms[part.ID] = ng
				buf.put(part.ID, ng)
			}
		}
		moved[ad.ID] = m.point
		dbg.Add(m.point, "snapped")
	}
	buf.flush()
	addresses.ChangeGeometries(moved)
	addresses.ChangeAttributes(specs)
	addresses.DeleteFeatures(toDelete)

	e.Report.Inc("address_orphan", orphan)
	e.Report.Inc("address_multiple", multiple)
	e.Logger.Info("Moved addresses", "entrances", len(classes), "snapped", len(moved),
		"orphan", orphan, "multiple", multiple)
	return classes
}

type entranceMatch struct {
	class   EntranceClass
	outline *Feature
	point   orb.Point
	after   VertexRef
	va, vb  orb.Point
}

// matchEntrance finds the outline edge closest to p and classifies it.
func (e *Engine) matchEntrance(p orb.Point, outlines []*Feature, current func(*Feature) orb.MultiPolygon, vo *VertexOwners) entranceMatch {
	t := e.thresholds()
	var best entranceMatch
	bestDist := -1.0
	for _, o := range outlines {
		d, closest, after, ok := closestSegment(current(o), p)
		if !ok {
			continue
		}
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = entranceMatch{outline: o, point: closest, after: after}
		}
	}
	if best.outline == nil || bestDist > sqr(t.AddrThr) {
		best.class = EntranceRemote
		return best
	}

	g := current(best.outline)
	before, _ := adjacentVertices(g, best.after)
	best.va, best.vb = vertexAt(g, before), vertexAt(g, best.after)
	entrance2 := sqr(t.EntranceThr)
	switch {
	case best.after.Ring > 0:
		best.class = EntranceInner
	case planar.DistanceSquared(best.point, best.va) < entrance2 || planar.DistanceSquared(best.point, best.vb) < entrance2:
		best.class = EntranceCorner
	case vo.IsSharedSegment(best.va, best.vb, best.outline.ID):
		best.class = EntranceShared
	default:
		best.class = EntranceSnapped
	}
	return best
}

// edgeRef returns where to insert a vertex on the outer-ring edge va-vb of
// any polygon of g.
func edgeRef(g orb.MultiPolygon, va, vb orb.Point) (VertexRef, bool) {
	for i, poly := range g {
		if len(poly) == 0 {
			continue
		}
		vs := ringVertices(poly[0])
		n := len(vs)
		for k := 0; k < n; k++ {
			a, b := vs[k], vs[(k+1)%n]
			if (a == va && b == vb) || (a == vb && b == va) {
				return VertexRef{Part: i, Ring: 0, Index: (k + 1) % n}, true
			}
		}
	}
	return VertexRef{}, false
}

package cadastre

import (
	"github.com/paulmach/orb"
)

// Simplify removes vertices that are not a corner in any feature owning
// them. A vertex is deleted from all its owners together so shared walls
// stay coincident; an owner whose ring would degenerate keeps it.
func (e *Engine) Simplify(fs *FeatureSet) {
	t := e.thresholds()
	dbg := e.debugWriter("simplify", fs)
	defer dbg.Close()

	features := fs.Features()
	geoms := make(map[FeatureID]orb.MultiPolygon, len(features))
	for _, f := range features {
		if mp := f.MultiPolygon(); mp != nil {
			geoms[f.ID] = mp
		}
	}
	vo := ParentsPerVertex(features)

	buf := e.newEditBuffer(fs)
	var killed, refused int
	for _, p := range vo.Keys {
		owners := vo.Owners[p]
		if isCornerInAny(geoms, owners, p, t) {
			continue
		}

		deleted := false
		for _, id := range owners {
			g := geoms[id]
			ref, ok := findVertex(g, p)
			if !ok {
				continue
			}
			prev, next := adjacentVertices(g, ref)
			va, vb := vertexAt(g, prev), vertexAt(g, next)
			if p == va || p == vb || va == vb {
				refused++
				continue
			}
			cand := cloneMultiPolygon(g)
			deleteVertex(cand, ref)
			if distinctVertices(cand[ref.Part][ref.Ring]) < 3 || !e.Kernel.IsValid(cand) {
				refused++
				dbg.Add(p, "simplify refused")
				continue
			}
			geoms[id] = cand
			buf.put(id, cand)
			deleted = true
		}
		if deleted {
			killed++
			dbg.Add(p, "simplified")
		}
	}
	buf.flush()

	e.Report.Inc(counter("vertex_simplify", fs), killed)
	e.Report.Inc(counter("vertex_simplify_refused", fs), refused)
	e.Logger.Info("Simplified", "layer", fs.Name, "vertices", killed, "refused", refused)
}

func isCornerInAny(geoms map[FeatureID]orb.MultiPolygon, owners []FeatureID, p orb.Point, t Thresholds) bool {
	for _, id := range owners {
		g := geoms[id]
		ref, ok := findVertex(g, p)
		if !ok {
			continue
		}
		if len(ringVertices(g[ref.Part][ref.Ring])) < 4 {
			return true
		}
		if cornerContext(g, ref, t).Corner {
			return true
		}
	}
	return false
}

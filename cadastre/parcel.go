package cadastre

import (
	"slices"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DeleteVoidParcels removes parcels no building-layer feature refers to.
func (e *Engine) DeleteVoidParcels(parcels, buildings *FeatureSet) {
	refs := make(map[string]struct{})
	for _, f := range buildings.Features() {
		refs[f.Ref()] = struct{}{}
	}
	var void []FeatureID
	for _, p := range parcels.Features() {
		if _, ok := refs[p.Ref()]; !ok {
			void = append(void, p.ID)
		}
	}
	parcels.DeleteFeatures(void)
	e.Report.Inc("void_parcels", len(void))
	e.Logger.Info("Deleted void parcels", "parcels", len(void))
}

// CreateMissingParcels adds a parcel for every building reference without
// one. Its geometry is the union of the outer rings of the referring
// outlines and its zone is the configured missing zone.
func (e *Engine) CreateMissingParcels(parcels, buildings *FeatureSet) error {
	have := make(map[string]struct{})
	for _, p := range parcels.Features() {
		have[p.Ref()] = struct{}{}
	}
	var order []string
	rings := make(map[string][]orb.MultiPolygon)
	for _, b := range buildings.Features() {
		ref := b.Ref()
		if _, ok := have[ref]; ok || !IsBuilding(b.LocalID()) {
			continue
		}
		if _, seen := rings[ref]; !seen {
			order = append(order, ref)
		}
		for _, poly := range b.MultiPolygon() {
			rings[ref] = append(rings[ref], orb.MultiPolygon{orb.Polygon{poly[0].Clone()}})
		}
	}

	var added []*Feature
	for _, ref := range order {
		geom, err := e.Kernel.Union(rings[ref]...)
		if err != nil {
			return WrapError(ErrCodeGeometry, err, "building parcel for %s", ref)
		}
		added = append(added, &Feature{
			Geometry: geom,
			Attrs: Attributes{
				AttrLocalID: ref,
				AttrZone:    e.Config.Tasks.MissingZone,
			},
		})
	}
	parcels.AddFeatures(added...)
	e.Report.Inc("missing_parcels", len(added))
	e.Logger.Info("Created missing parcels", "parcels", len(added))
	return nil
}

// CountParts stores on each parcel the number of building-layer features
// referring to it and returns the counts by reference.
func (e *Engine) CountParts(parcels, buildings *FeatureSet) map[string]int {
	counts := make(map[string]int)
	for _, b := range buildings.Features() {
		counts[b.Ref()]++
	}
	attrs := make(map[FeatureID]Attributes)
	for _, p := range parcels.Features() {
		attrs[p.ID] = Attributes{AttrParts: counts[p.Ref()]}
	}
	parcels.ChangeAttributes(attrs)
	return counts
}

// TotalParts sums the parts attribute over a parcel layer.
func TotalParts(parcels *FeatureSet) int {
	total := 0
	for _, p := range parcels.Features() {
		total += p.Attrs.Int(AttrParts)
	}
	return total
}

// MergeByAdjacentBuildings unions parcels whose outlines share a wall.
// Zones touched by one cross-zone union are merged as well. It returns the
// parcel rename map (reference to representative reference).
func (e *Engine) MergeByAdjacentBuildings(parcels, buildings *FeatureSet) (map[string]string, error) {
	outlines := buildings.Filter(func(f *Feature) bool { return IsBuilding(f.LocalID()) })
	vo := ParentsPerVertex(outlines)

	parcelByRef := make(map[string]*Feature)
	position := make(map[FeatureID]int)
	for i, p := range parcels.Features() {
		position[p.ID] = i
		if _, dup := parcelByRef[p.Ref()]; !dup {
			parcelByRef[p.Ref()] = p
		}
	}
	outlineRef := make(map[FeatureID]string, len(outlines))
	for _, o := range outlines {
		outlineRef[o.ID] = o.Ref()
	}

	var parcelSets [][]FeatureID
	for _, adj := range vo.Adjacents(outlines) {
		var set []FeatureID
		for _, bid := range adj {
			p, ok := parcelByRef[outlineRef[bid]]
			if !ok {
				return nil, NewError(ErrCodeMissingParcel, "building %s has no parcel", outlineRef[bid])
			}
			if !slices.Contains(set, p.ID) {
				set = append(set, p.ID)
			}
		}
		if len(set) > 1 {
			parcelSets = append(parcelSets, set)
		}
	}
	groups := MergeGroups(parcelSets)

	if err := e.mergeZones(parcels, groups); err != nil {
		return nil, err
	}

	renames := make(map[string]string)
	merged := 0
	for _, group := range groups {
		members := make([]*Feature, 0, len(group))
		for _, id := range group {
			f, _ := parcels.Get(id)
			members = append(members, f)
		}
		sort.SliceStable(members, func(i, j int) bool {
			return position[members[i].ID] < position[members[j].ID]
		})
		rep := members[0]
		repArea := polygonArea(rep.MultiPolygon())
		for _, m := range members[1:] {
			if a := polygonArea(m.MultiPolygon()); a > repArea {
				rep, repArea = m, a
			}
		}
		merged += e.mergeInto(parcels, rep, members, renames)
	}

	e.Report.Inc("tasks_adjacent", merged)
	e.Logger.Info("Merged parcels by adjacent buildings", "groups", len(groups), "merged", merged)
	return renames, nil
}

// mergeZones relabels the zones touched by a cross-zone group. Each set of
// connected zones takes the label carrying most parcels, ties going to the
// lexically smallest label.
func (e *Engine) mergeZones(parcels *FeatureSet, groups [][]FeatureID) error {
	var zoneSets [][]string
	for _, group := range groups {
		var zones []string
		for _, id := range group {
			f, _ := parcels.Get(id)
			z := f.Attrs.String(AttrZone)
			if !slices.Contains(zones, z) {
				zones = append(zones, z)
			}
		}
		if len(zones) > 1 {
			zoneSets = append(zoneSets, zones)
		}
	}
	if len(zoneSets) == 0 {
		return nil
	}

	population := make(map[string]int)
	for _, p := range parcels.Features() {
		population[p.Attrs.String(AttrZone)]++
	}
	relabel := make(map[string]string)
	for _, zones := range MergeGroups(zoneSets) {
		label := zones[0]
		for _, z := range zones[1:] {
			if population[z] > population[label] {
				label = z
			}
		}
		for _, z := range zones {
			if z != label {
				relabel[z] = label
			}
		}
	}

	attrs := make(map[FeatureID]Attributes)
	for _, p := range parcels.Features() {
		if to, ok := relabel[p.Attrs.String(AttrZone)]; ok {
			attrs[p.ID] = Attributes{AttrZone: to}
		}
	}
	parcels.ChangeAttributes(attrs)
	e.Report.Inc("zones_merged", len(relabel))
	for from, to := range relabel {
		e.Logger.Debug("Merged zone", "from", from, "to", to)
	}
	return nil
}

// mergeInto unions members into rep one at a time, sums their part counts
// and deletes the absorbed ones, recording their renames. A member whose
// union fails is left in place with a fixme. It returns how many members
// were absorbed.
func (e *Engine) mergeInto(parcels *FeatureSet, rep *Feature, members []*Feature, renames map[string]string) int {
	geom := rep.MultiPolygon()
	parts := rep.Attrs.Int(AttrParts)
	var gone []FeatureID
	flagged := make(map[FeatureID]Attributes)
	for _, m := range members {
		if m.ID == rep.ID {
			continue
		}
		u, err := e.Kernel.Union(geom, m.MultiPolygon())
		if err != nil || len(u) == 0 {
			e.Report.Inc("merge_refused", 1)
			e.Report.Warn("parcel %s could not be merged into %s: %v", m.Ref(), rep.Ref(), err)
			e.Logger.Warn("Merge refused", "parcel", m.Ref(), "into", rep.Ref(), "err", err)
			flagged[m.ID] = Attributes{AttrFixme: FixmeMergeRefused}
			continue
		}
		geom = u
		parts += m.Attrs.Int(AttrParts)
		gone = append(gone, m.ID)
		renames[m.Ref()] = rep.Ref()
	}
	if len(gone) > 0 {
		parcels.ChangeGeometries(map[FeatureID]orb.Geometry{rep.ID: geom})
		parcels.ChangeAttributes(map[FeatureID]Attributes{rep.ID: {AttrParts: parts}})
		parcels.DeleteFeatures(gone)
	}
	parcels.ChangeAttributes(flagged)
	return len(gone)
}

// MergeByPartsCount clusters parcels of the same zone greedily by centroid
// distance until the part budget is reached. Candidates lie within buffer of
// the seed parcel's geometry.
func (e *Engine) MergeByPartsCount(parcels *FeatureSet, maxParts int, buffer float64) (map[string]string, error) {
	features := parcels.Features()
	position := make(map[FeatureID]int, len(features))
	centroid := make(map[FeatureID]orb.Point, len(features))
	var zones []string
	byZone := make(map[string][]*Feature)
	for i, p := range features {
		z := p.Attrs.String(AttrZone)
		if z == "" {
			return nil, NewError(ErrCodeEmptyZone, "parcel %s has no zone", p.Ref())
		}
		if _, ok := byZone[z]; !ok {
			zones = append(zones, z)
		}
		byZone[z] = append(byZone[z], p)
		position[p.ID] = i
		centroid[p.ID], _ = planar.CentroidArea(p.MultiPolygon())
	}

	index := parcels.Snapshot()
	visited := make(map[FeatureID]bool)
	renames := make(map[string]string)
	var clusters, merged, oversized int

	for _, zone := range zones {
		for _, seed := range byZone[zone] {
			if visited[seed.ID] {
				continue
			}
			visited[seed.ID] = true
			cluster := []*Feature{seed}
			total := seed.Attrs.Int(AttrParts)
			if total > maxParts {
				oversized++
				e.Report.Warn("parcel %s alone has %d parts, above the %d budget", seed.Ref(), total, maxParts)
			}

			var cands []*Feature
			seedGeom := seed.MultiPolygon()
			for _, id := range index.Search(seedGeom.Bound().Pad(buffer)) {
				c, ok := parcels.Get(id)
				if !ok || visited[id] || c.Attrs.String(AttrZone) != zone {
					continue
				}
				if e.Kernel.Distance(seedGeom, c.MultiPolygon()) > buffer {
					continue
				}
				cands = append(cands, c)
			}
			origin := centroid[seed.ID]
			sort.SliceStable(cands, func(i, j int) bool {
				di := planar.DistanceSquared(origin, centroid[cands[i].ID])
				dj := planar.DistanceSquared(origin, centroid[cands[j].ID])
				if di != dj {
					return di < dj
				}
				return position[cands[i].ID] < position[cands[j].ID]
			})
			for _, c := range cands {
				n := c.Attrs.Int(AttrParts)
				if total+n > maxParts {
					break
				}
				total += n
				visited[c.ID] = true
				cluster = append(cluster, c)
			}

			clusters++
			if len(cluster) < 2 {
				continue
			}
			absorbed := e.mergeInto(parcels, seed, cluster, renames)
			merged += absorbed
			clusters += len(cluster) - 1 - absorbed
		}
	}

	e.Report.Inc("tasks_budget", merged)
	e.Report.Inc("tasks_oversized", oversized)
	e.Report.Inc("tasks", clusters)
	e.Logger.Info("Merged parcels by parts count", "tasks", clusters, "merged", merged, "oversized", oversized)
	return renames, nil
}

// ComposeRenames applies second on top of first.
func ComposeRenames(first, second map[string]string) map[string]string {
	out := make(map[string]string, len(first)+len(second))
	for k, v := range second {
		out[k] = v
	}
	for k, v := range first {
		if w, ok := second[v]; ok {
			v = w
		}
		out[k] = v
	}
	return out
}

// AssignTasks sets the task attribute of every feature in layers to the
// representative parcel of its reference.
func AssignTasks(renames map[string]string, layers ...*FeatureSet) {
	for _, fs := range layers {
		if fs == nil {
			continue
		}
		attrs := make(map[FeatureID]Attributes, fs.Len())
		for _, f := range fs.Features() {
			task := f.Ref()
			if to, ok := renames[task]; ok {
				task = to
			}
			attrs[f.ID] = Attributes{AttrTask: task}
		}
		fs.ChangeAttributes(attrs)
	}
}

package cadastre

import (
	"math"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// buildingGroups indexes a building layer by root reference.
type buildingGroups struct {
	outlines []*Feature
	parts    map[string][]*Feature
	pools    map[string][]*Feature
	byRef    map[string][]*Feature
}

func groupBuildings(fs *FeatureSet) *buildingGroups {
	bg := &buildingGroups{
		parts: make(map[string][]*Feature),
		pools: make(map[string][]*Feature),
		byRef: make(map[string][]*Feature),
	}
	for _, f := range fs.Features() {
		id := f.LocalID()
		ref := f.Ref()
		switch {
		case IsBuilding(id):
			bg.outlines = append(bg.outlines, f)
			bg.byRef[ref] = append(bg.byRef[ref], f)
		case IsPart(id):
			bg.parts[ref] = append(bg.parts[ref], f)
		case IsPool(id):
			bg.pools[ref] = append(bg.pools[ref], f)
		}
	}
	return bg
}

// consolidation tracks pending edits of MergeBuildingParts. Reads go through
// geoms so later steps see earlier edits before they are flushed.
type consolidation struct {
	e       *Engine
	fs      *FeatureSet
	geoms   map[FeatureID]orb.MultiPolygon
	attrs   map[FeatureID]Attributes
	deleted map[FeatureID]bool
	buf     *editBuffer
}

func (c *consolidation) geom(f *Feature) orb.MultiPolygon {
	if g, ok := c.geoms[f.ID]; ok {
		return g
	}
	return f.MultiPolygon()
}

func (c *consolidation) setGeom(f *Feature, g orb.MultiPolygon) {
	c.geoms[f.ID] = g
	c.buf.put(f.ID, g)
}

func (c *consolidation) setAttr(f *Feature, key string, value interface{}) {
	if c.attrs[f.ID] == nil {
		c.attrs[f.ID] = Attributes{}
	}
	c.attrs[f.ID][key] = value
}

func (c *consolidation) fixme(f *Feature, msg string) {
	prev := f.Attrs.String(AttrFixme)
	if pending, ok := c.attrs[f.ID][AttrFixme].(string); ok {
		prev = pending
	}
	if strings.Contains(prev, msg) {
		return
	}
	if prev != "" {
		msg = prev + "; " + msg
	}
	c.setAttr(f, AttrFixme, msg)
}

func (c *consolidation) remove(f *Feature) {
	c.deleted[f.ID] = true
}

func (c *consolidation) live(fs []*Feature) []*Feature {
	var out []*Feature
	for _, f := range fs {
		if !c.deleted[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// owner returns the first outline containing part, or nil.
func (c *consolidation) owner(part *Feature, outlines []*Feature) *Feature {
	for _, o := range outlines {
		if c.e.inside(c.geom(part), c.geom(o)) {
			return o
		}
	}
	return nil
}

func (c *consolidation) commit() {
	c.buf.flush()
	c.fs.ChangeAttributes(c.attrs)
	var ids []FeatureID
	for id := range c.deleted {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	c.fs.DeleteFeatures(ids)
}

// RemoveOutsideParts deletes underground-only parts and parts lying outside
// every outline with the same reference.
func (e *Engine) RemoveOutsideParts(fs *FeatureSet) {
	bg := groupBuildings(fs)
	var toDelete []FeatureID
	var outside, underground int
	for ref, parts := range bg.parts {
		for _, part := range parts {
			lev := part.Levels()
			if lev.Above == 0 && lev.Below != 0 {
				toDelete = append(toDelete, part.ID)
				underground++
				continue
			}
			if !e.insideAny(part.MultiPolygon(), bg.byRef[ref]) {
				toDelete = append(toDelete, part.ID)
				outside++
			}
		}
	}
	slices.Sort(toDelete)
	fs.DeleteFeatures(toDelete)
	e.Report.Inc("outside_parts", outside)
	e.Report.Inc("underground_parts", underground)
	e.Logger.Info("Removed parts", "outside", outside, "underground", underground)
}

func (e *Engine) insideAny(g orb.MultiPolygon, outlines []*Feature) bool {
	for _, o := range outlines {
		if e.inside(g, o.MultiPolygon()) {
			return true
		}
	}
	return false
}

// MergeBuildingParts consolidates every outline with its pools and parts:
// pools on roofs are lifted to layer 1, rings duplicated by a pool are
// removed, and parts are merged per level class.
func (e *Engine) MergeBuildingParts(fs *FeatureSet) {
	bg := groupBuildings(fs)
	c := &consolidation{
		e:       e,
		fs:      fs,
		geoms:   make(map[FeatureID]orb.MultiPolygon),
		attrs:   make(map[FeatureID]Attributes),
		deleted: make(map[FeatureID]bool),
		buf:     e.newEditBuffer(fs),
	}
	var stats consolidationStats

	for _, outline := range bg.outlines {
		ref := outline.Ref()
		e.consolidatePools(c, outline, bg.pools[ref], bg.parts[ref], &stats)
	}

	owned := make(map[FeatureID][]*Feature)
	for ref, parts := range bg.parts {
		outlines := c.live(bg.byRef[ref])
		for _, part := range c.live(parts) {
			owner := c.owner(part, outlines)
			if owner == nil {
				c.remove(part)
				stats.outsideParts++
				continue
			}
			owned[owner.ID] = append(owned[owner.ID], part)
		}
	}
	for _, outline := range c.live(bg.outlines) {
		e.mergeAdjacentParts(c, outline, owned[outline.ID], &stats)
	}
	c.commit()

	r := e.Report
	r.Inc("pools_on_roofs", stats.poolsOnRoofs)
	r.Inc("buildings_in_pools", stats.buildingsInPools)
	r.Inc("adjacent_parts", stats.adjacentParts)
	r.Inc("superseded_parts", stats.supersededParts)
	r.Inc("outside_parts", stats.outsideParts)
	r.Inc("parts_bigger", stats.partsBigger)
	r.Inc("parts_not_fill", stats.partsNotFill)
	e.Logger.Info("Merged building parts",
		"pools_on_roofs", stats.poolsOnRoofs, "buildings_in_pools", stats.buildingsInPools,
		"adjacent_parts", stats.adjacentParts, "superseded_parts", stats.supersededParts)
}

type consolidationStats struct {
	poolsOnRoofs     int
	buildingsInPools int
	adjacentParts    int
	supersededParts  int
	outsideParts     int
	partsBigger      int
	partsNotFill     int
}

// consolidatePools handles the pools of one outline. The outline is deleted
// when it is the pool footprint itself.
func (e *Engine) consolidatePools(c *consolidation, outline *Feature, pools, parts []*Feature, stats *consolidationStats) {
	for _, pool := range c.live(pools) {
		pg := c.geom(pool)
		if len(pg) == 0 {
			continue
		}
		if pool.Attrs.Int(AttrLayer) != 1 && e.Kernel.Contains(c.geom(outline), pg) {
			c.setAttr(pool, AttrLayer, 1)
			stats.poolsOnRoofs++
		}

		ng, whole := e.removeInnerRings(c.geom(outline), pg)
		if whole {
			c.remove(outline)
			stats.buildingsInPools++
			return
		}
		if ng != nil {
			c.setGeom(outline, ng)
		}
		for _, part := range c.live(parts) {
			ng, whole := e.removeInnerRings(c.geom(part), pg)
			switch {
			case whole:
				c.remove(part)
			case ng != nil:
				c.setGeom(part, ng)
			}
		}
	}
}

// removeInnerRings drops the rings of g that coincide with the outer ring of
// pool. whole is true when every polygon of g is the pool itself.
func (e *Engine) removeInnerRings(g, pool orb.MultiPolygon) (result orb.MultiPolygon, whole bool) {
	target := orb.MultiPolygon{orb.Polygon{pool[0][0]}}
	tb := pool[0][0].Bound()
	changed := false
	out := make(orb.MultiPolygon, 0, len(g))
	for _, poly := range g {
		kept := orb.Polygon{}
		dropPart := false
		for ri, ring := range poly {
			if ring.Bound() == tb && e.Kernel.Equals(orb.MultiPolygon{orb.Polygon{ring}}, target) {
				changed = true
				if ri == 0 {
					dropPart = true
					break
				}
				continue
			}
			kept = append(kept, ring)
		}
		if !dropPart {
			out = append(out, kept)
		}
	}
	if !changed {
		return nil, false
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, false
}

// mergeAdjacentParts applies the level-class rules to the parts of outline.
func (e *Engine) mergeAdjacentParts(c *consolidation, outline *Feature, parts []*Feature, stats *consolidationStats) {
	og := c.geom(outline)
	byClass := make(map[LevelClass][]*Feature)
	var classes []LevelClass
	maxAbove, maxBelow := 0, 0
	for _, part := range parts {
		lc := part.Levels()
		if _, ok := byClass[lc]; !ok {
			classes = append(classes, lc)
		}
		byClass[lc] = append(byClass[lc], part)
		maxAbove = max(maxAbove, lc.Above)
		maxBelow = max(maxBelow, lc.Below)
	}
	if len(classes) == 0 {
		return
	}

	c.setAttr(outline, AttrLevAbove, maxAbove)
	c.setAttr(outline, AttrLevBelow, maxBelow)

	slices.SortFunc(classes, func(a, b LevelClass) int {
		if a.Above != b.Above {
			return a.Above - b.Above
		}
		return a.Below - b.Below
	})
	top := LevelClass{Above: maxAbove, Below: maxBelow}
	buildingArea := math.Round(polygonArea(og))
	partsArea := 0.0

	for _, lc := range classes {
		group := byClass[lc]
		oversized := false
		for _, part := range group {
			a := polygonArea(c.geom(part))
			partsArea += a
			if math.Round(a) > buildingArea {
				c.fixme(part, FixmePartBigger)
				oversized = true
			}
		}
		if oversized {
			c.fixme(outline, FixmePartBigger)
			stats.partsBigger++
			continue
		}

		if len(classes) == 1 || (lc == top && e.Config.SimplifyBuildingParts) {
			for _, part := range group {
				c.remove(part)
			}
			stats.supersededParts += len(group)
			continue
		}
		if len(group) < 2 {
			continue
		}

		geoms := make([]orb.MultiPolygon, len(group))
		for i, part := range group {
			geoms[i] = c.geom(part)
		}
		merged, err := e.Kernel.Union(geoms...)
		if err != nil {
			e.Report.Warn("merging parts of %s: %v", outline.LocalID(), err)
			continue
		}
		if len(merged) >= len(group) {
			continue
		}
		for i, poly := range merged {
			c.setGeom(group[i], orb.MultiPolygon{poly})
		}
		for _, part := range group[len(merged):] {
			c.remove(part)
		}
		stats.adjacentParts += len(group) - len(merged)
	}

	if len(classes) > 1 && math.Round(partsArea) != buildingArea {
		c.fixme(outline, FixmePartsNotFill)
		stats.partsNotFill++
	}
}

// Validate marks outlines and pools with area or validity problems.
func (e *Engine) Validate(fs *FeatureSet) {
	t := e.thresholds()
	attrs := make(map[FeatureID]Attributes)
	var small, big, invalid int
	for _, f := range fs.Features() {
		id := f.LocalID()
		if IsPart(id) {
			continue
		}
		mp := f.MultiPolygon()
		var notes []string
		if reason := e.Kernel.ValidReason(mp); reason != "" {
			notes = append(notes, reason)
			invalid++
		}
		area := polygonArea(mp)
		switch {
		case area < t.WarningMinArea:
			notes = append(notes, FixmeAreaSmall)
			small++
		case t.WarningMaxArea > 0 && area > t.WarningMaxArea:
			notes = append(notes, FixmeAreaBig)
			big++
		}
		if len(notes) == 0 {
			continue
		}
		if prev := f.Attrs.String(AttrFixme); prev != "" {
			notes = append([]string{prev}, notes...)
		}
		attrs[f.ID] = Attributes{AttrFixme: strings.Join(notes, "; ")}
	}
	fs.ChangeAttributes(attrs)
	e.Report.Inc("validation_small", small)
	e.Report.Inc("validation_big", big)
	e.Report.Inc("validation_invalid", invalid)
	e.Logger.Info("Validated", "layer", fs.Name, "small", small, "big", big, "invalid", invalid)
}

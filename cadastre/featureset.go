package cadastre

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FeatureSet is an arena of features keyed by id. Iteration follows insertion
// order. All mutations go through the bulk operations so that the cached
// spatial index can be invalidated consistently.
type FeatureSet struct {
	Name string

	features map[FeatureID]*Feature
	order    []FeatureID
	deleted  int
	nextID   FeatureID
	cellSize float64
	index    *SpatialIndex
}

// NewFeatureSet creates an empty layer.
func NewFeatureSet(name string) *FeatureSet {
	return &FeatureSet{
		Name:     name,
		features: make(map[FeatureID]*Feature),
		nextID:   1,
		cellSize: 50,
	}
}

// SetIndexCellSize sets the grid cell size of the spatial index.
func (fs *FeatureSet) SetIndexCellSize(size float64) {
	if size > 0 && size != fs.cellSize {
		fs.cellSize = size
		fs.index = nil
	}
}

// Len returns the number of live features.
func (fs *FeatureSet) Len() int {
	return len(fs.features)
}

// Get returns the feature with id.
func (fs *FeatureSet) Get(id FeatureID) (*Feature, bool) {
	f, ok := fs.features[id]
	return f, ok
}

// Features returns the live features in store order. The returned features
// must be treated as read-only; use the bulk operations to change them.
func (fs *FeatureSet) Features() []*Feature {
	fs.compact()
	out := make([]*Feature, 0, len(fs.order))
	for _, id := range fs.order {
		out = append(out, fs.features[id])
	}
	return out
}

// Filter returns the features matching pred in store order.
func (fs *FeatureSet) Filter(pred func(*Feature) bool) []*Feature {
	fs.compact()
	var out []*Feature
	for _, id := range fs.order {
		f := fs.features[id]
		if pred == nil || pred(f) {
			out = append(out, f)
		}
	}
	return out
}

func (fs *FeatureSet) compact() {
	if fs.deleted == 0 {
		return
	}
	live := fs.order[:0]
	for _, id := range fs.order {
		if _, ok := fs.features[id]; ok {
			live = append(live, id)
		}
	}
	fs.order = live
	fs.deleted = 0
}

// AddFeatures stores the given features. Features with a zero id get a fresh
// one; the stored ids are returned in input order.
func (fs *FeatureSet) AddFeatures(features ...*Feature) []FeatureID {
	ids := make([]FeatureID, 0, len(features))
	for _, f := range features {
		if f.ID == 0 {
			f.ID = fs.nextID
		}
		if f.ID >= fs.nextID {
			fs.nextID = f.ID + 1
		}
		if f.Attrs == nil {
			f.Attrs = Attributes{}
		}
		f.Geometry = normalizeGeometry(f.Geometry)
		if _, exists := fs.features[f.ID]; !exists {
			fs.order = append(fs.order, f.ID)
		}
		fs.features[f.ID] = f
		if fs.index != nil {
			fs.index.Insert(f.ID, geometryBound(f.Geometry))
		}
		ids = append(ids, f.ID)
	}
	return ids
}

// DeleteFeatures removes the given ids. Unknown ids are ignored.
func (fs *FeatureSet) DeleteFeatures(ids []FeatureID) {
	for _, id := range ids {
		if _, ok := fs.features[id]; !ok {
			continue
		}
		delete(fs.features, id)
		fs.deleted++
		if fs.index != nil {
			fs.index.Remove(id)
		}
	}
}

// ChangeGeometries replaces the geometry of each listed feature.
func (fs *FeatureSet) ChangeGeometries(changes map[FeatureID]orb.Geometry) {
	for id, g := range changes {
		f, ok := fs.features[id]
		if !ok {
			continue
		}
		f.Geometry = normalizeGeometry(g)
		if fs.index != nil {
			fs.index.Insert(id, geometryBound(f.Geometry))
		}
	}
}

// ChangeAttributes merges the given values into each listed feature.
func (fs *FeatureSet) ChangeAttributes(changes map[FeatureID]Attributes) {
	for id, attrs := range changes {
		f, ok := fs.features[id]
		if !ok {
			continue
		}
		for k, v := range attrs {
			f.Attrs[k] = v
		}
	}
}

// Index returns the spatial index over the current features, building it on
// first use. Bulk operations keep it in sync afterwards.
func (fs *FeatureSet) Index() *SpatialIndex {
	if fs.index == nil {
		fs.index = NewSpatialIndex(fs.cellSize)
		for _, id := range fs.order {
			if f, ok := fs.features[id]; ok {
				fs.index.Insert(id, geometryBound(f.Geometry))
			}
		}
	}
	return fs.index
}

// Snapshot returns a detached copy of the spatial index that bulk edits do
// not touch. Stages holding an index across edits use it.
func (fs *FeatureSet) Snapshot() *SpatialIndex {
	idx := NewSpatialIndex(fs.cellSize)
	for _, f := range fs.Features() {
		idx.Insert(f.ID, geometryBound(f.Geometry))
	}
	return idx
}

// Search returns the features whose bounds intersect b, in ascending id order.
func (fs *FeatureSet) Search(b orb.Bound) []*Feature {
	ids := fs.Index().Search(b)
	out := make([]*Feature, 0, len(ids))
	for _, id := range ids {
		out = append(out, fs.features[id])
	}
	return out
}

// Area returns the summed planar area of the layer.
func (fs *FeatureSet) Area() float64 {
	var total float64
	for _, f := range fs.Features() {
		if mp := f.MultiPolygon(); mp != nil {
			total += planar.Area(mp)
		}
	}
	return total
}

// VertexCount returns the number of distinct ring vertices in the layer.
func (fs *FeatureSet) VertexCount() int {
	n := 0
	for _, f := range fs.Features() {
		for _, poly := range f.MultiPolygon() {
			for _, ring := range poly {
				n += len(ringVertices(ring))
			}
		}
	}
	return n
}

func normalizeGeometry(g orb.Geometry) orb.Geometry {
	if p, ok := g.(orb.Polygon); ok {
		return orb.MultiPolygon{p}
	}
	return g
}

func geometryBound(g orb.Geometry) orb.Bound {
	if g == nil {
		return orb.Bound{}
	}
	return g.Bound()
}

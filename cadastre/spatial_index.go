package cadastre

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// maxCellsPerItem caps how many grid cells one bound is registered in.
// Larger bounds go to the oversized list, scanned on every query.
const maxCellsPerItem = 4096

type cellKey struct {
	x, y int
}

// SpatialIndex is a uniform grid over feature bounding boxes.
type SpatialIndex struct {
	cellSize  float64
	grid      map[cellKey][]FeatureID
	bounds    map[FeatureID]orb.Bound
	oversized map[FeatureID]struct{}
}

// NewSpatialIndex creates an empty grid with the given cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &SpatialIndex{
		cellSize:  cellSize,
		grid:      make(map[cellKey][]FeatureID),
		bounds:    make(map[FeatureID]orb.Bound),
		oversized: make(map[FeatureID]struct{}),
	}
}

func (si *SpatialIndex) cellRange(b orb.Bound) (minX, minY, maxX, maxY int) {
	minX = int(math.Floor(b.Min[0] / si.cellSize))
	minY = int(math.Floor(b.Min[1] / si.cellSize))
	maxX = int(math.Floor(b.Max[0] / si.cellSize))
	maxY = int(math.Floor(b.Max[1] / si.cellSize))
	return
}

// spansMore reports whether b covers more than limit cells. The count is
// taken in floating point so huge or NaN bounds cannot overflow it.
func (si *SpatialIndex) spansMore(b orb.Bound, limit int) bool {
	nx := math.Floor(b.Max[0]/si.cellSize) - math.Floor(b.Min[0]/si.cellSize) + 1
	ny := math.Floor(b.Max[1]/si.cellSize) - math.Floor(b.Min[1]/si.cellSize) + 1
	return !(nx*ny <= float64(limit))
}

// Insert registers id with bound b, replacing any previous entry.
func (si *SpatialIndex) Insert(id FeatureID, b orb.Bound) {
	if _, ok := si.bounds[id]; ok {
		si.Remove(id)
	}
	si.bounds[id] = b

	if si.spansMore(b, maxCellsPerItem) {
		si.oversized[id] = struct{}{}
		return
	}
	minX, minY, maxX, maxY := si.cellRange(b)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			k := cellKey{x, y}
			si.grid[k] = append(si.grid[k], id)
		}
	}
}

// Remove drops id from the index.
func (si *SpatialIndex) Remove(id FeatureID) {
	b, ok := si.bounds[id]
	if !ok {
		return
	}
	delete(si.bounds, id)
	if _, big := si.oversized[id]; big {
		delete(si.oversized, id)
		return
	}

	minX, minY, maxX, maxY := si.cellRange(b)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			k := cellKey{x, y}
			cell := si.grid[k]
			for i, cand := range cell {
				if cand == id {
					cell = append(cell[:i], cell[i+1:]...)
					break
				}
			}
			if len(cell) == 0 {
				delete(si.grid, k)
			} else {
				si.grid[k] = cell
			}
		}
	}
}

// Len returns the number of indexed ids.
func (si *SpatialIndex) Len() int {
	return len(si.bounds)
}

// Search returns the ids whose bounds intersect b, in ascending order.
func (si *SpatialIndex) Search(b orb.Bound) []FeatureID {
	seen := make(map[FeatureID]struct{})
	var result []FeatureID
	consider := func(id FeatureID) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		if si.bounds[id].Intersects(b) {
			result = append(result, id)
		}
	}

	if si.spansMore(b, len(si.grid)) {
		for _, cell := range si.grid {
			for _, id := range cell {
				consider(id)
			}
		}
	} else {
		minX, minY, maxX, maxY := si.cellRange(b)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				for _, id := range si.grid[cellKey{x, y}] {
					consider(id)
				}
			}
		}
	}
	for id := range si.oversized {
		consider(id)
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

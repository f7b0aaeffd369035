package cadastre

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
)

// VertexOwners maps every ring vertex to the features owning it.
// Keys keeps first-seen order so that iteration is deterministic.
type VertexOwners struct {
	Keys   []orb.Point
	Owners map[orb.Point][]FeatureID
}

// ParentsPerVertex indexes the vertices of the given polygon features,
// skipping the closing duplicate of each ring. A feature is listed once per
// vertex even if the vertex repeats within it.
func ParentsPerVertex(features []*Feature) *VertexOwners {
	vo := &VertexOwners{Owners: make(map[orb.Point][]FeatureID)}
	for _, f := range features {
		for _, poly := range f.MultiPolygon() {
			for _, ring := range poly {
				for _, p := range ringVertices(ring) {
					owners, seen := vo.Owners[p]
					if !seen {
						vo.Keys = append(vo.Keys, p)
					}
					if slices.Contains(owners, f.ID) {
						continue
					}
					vo.Owners[p] = append(owners, f.ID)
				}
			}
		}
	}
	return vo
}

// contacts returns the owner sets of vertices shared by more than one feature.
func (vo *VertexOwners) contacts() [][]FeatureID {
	var groups [][]FeatureID
	seen := make(map[string]struct{})
	for _, p := range vo.Keys {
		owners := vo.Owners[p]
		if len(owners) < 2 {
			continue
		}
		g := sortedCopy(owners)
		k := groupKey(g)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		groups = append(groups, g)
	}
	return groups
}

// Adjacents returns the owner sets of edges shared by more than one feature:
// both endpoints of an edge must be owned by every member of the set, which
// separates shared walls from features that merely touch at a corner.
func (vo *VertexOwners) Adjacents(features []*Feature) [][]FeatureID {
	var groups [][]FeatureID
	seen := make(map[string]struct{})
	for _, f := range features {
		for _, poly := range f.MultiPolygon() {
			for _, ring := range poly {
				vs := ringVertices(ring)
				for i, p := range vs {
					a := vo.Owners[p]
					if len(a) < 2 {
						continue
					}
					b := vo.Owners[vs[(i+1)%len(vs)]]
					if len(b) < 2 {
						continue
					}
					common := intersectIDs(a, b)
					if len(common) < 2 {
						continue
					}
					k := groupKey(common)
					if _, dup := seen[k]; dup {
						continue
					}
					seen[k] = struct{}{}
					groups = append(groups, common)
				}
			}
		}
	}
	return groups
}

// IsSharedSegment reports whether some feature other than exclude owns both
// va and vb.
func (vo *VertexOwners) IsSharedSegment(va, vb orb.Point, exclude FeatureID) bool {
	for _, id := range vo.Owners[va] {
		if id != exclude && slices.Contains(vo.Owners[vb], id) {
			return true
		}
	}
	return false
}

// MergeGroups joins every pair of input sets sharing a member until no two
// output groups intersect. Groups are returned in order of their first
// appearance in the input, members sorted ascending.
func MergeGroups[T cmp.Ordered](sets [][]T) [][]T {
	index := make(map[T]int)
	var items []T
	for _, s := range sets {
		for _, v := range s {
			if _, ok := index[v]; !ok {
				index[v] = len(items)
				items = append(items, v)
			}
		}
	}

	uf := newUnionFind(len(items))
	for _, s := range sets {
		for _, v := range s[min(1, len(s)):] {
			uf.union(index[s[0]], index[v])
		}
	}

	slot := make(map[int]int)
	var groups [][]T
	for i, v := range items {
		root := uf.find(i)
		n, ok := slot[root]
		if !ok {
			n = len(groups)
			slot[root] = n
			groups = append(groups, nil)
		}
		groups[n] = append(groups[n], v)
	}
	for _, g := range groups {
		slices.Sort(g)
	}
	return groups
}

// unionFind implements a disjoint-set data structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[rb] = ra
	}
}

func sortedCopy(ids []FeatureID) []FeatureID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func intersectIDs(a, b []FeatureID) []FeatureID {
	var out []FeatureID
	for _, id := range a {
		if slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func groupKey(ids []FeatureID) string {
	b := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		for s := 0; s < 64; s += 8 {
			b = append(b, byte(id>>s))
		}
	}
	return string(b)
}

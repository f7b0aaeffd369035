package cadastre

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// Kernel is the geometry capability the engine consumes. It never edits
// vertices itself; vertex edits live in vertex.go and are checked here.
type Kernel interface {
	IsValid(mp orb.MultiPolygon) bool
	ValidReason(mp orb.MultiPolygon) string
	Union(mps ...orb.MultiPolygon) (orb.MultiPolygon, error)
	MakeValid(mp orb.MultiPolygon) (orb.MultiPolygon, error)
	Contains(a, b orb.MultiPolygon) bool
	Intersects(a, b orb.MultiPolygon) bool
	IntersectionArea(a, b orb.MultiPolygon) float64
	Distance(a, b orb.MultiPolygon) float64
	Equals(a, b orb.MultiPolygon) bool
}

// GEOSKernel implements Kernel on top of libgeos.
type GEOSKernel struct{}

// wellFormed checks what GEOS would refuse to build: empty parts, rings with
// fewer than four points and open rings.
func wellFormed(mp orb.MultiPolygon) bool {
	if len(mp) == 0 {
		return false
	}
	for _, poly := range mp {
		if len(poly) == 0 {
			return false
		}
		for _, ring := range poly {
			if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
				return false
			}
		}
	}
	return true
}

func toGEOS(mp orb.MultiPolygon) (g *geos.Geom, err error) {
	if !wellFormed(mp) {
		return nil, NewError(ErrCodeGeometry, "malformed multipolygon")
	}
	data, err := wkb.Marshal(mp)
	if err != nil {
		return nil, WrapError(ErrCodeGeometry, err, "encoding WKB")
	}
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, NewError(ErrCodeGeometry, "decoding WKB: %v", r)
		}
	}()
	g, err = geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, WrapError(ErrCodeGeometry, err, "decoding WKB")
	}
	return g, nil
}

func fromGEOS(g *geos.Geom) (orb.MultiPolygon, error) {
	geom, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, WrapError(ErrCodeGeometry, err, "reading GEOS result")
	}
	return polygonsOf(geom), nil
}

// polygonsOf keeps the polygonal components of g.
func polygonsOf(g orb.Geometry) orb.MultiPolygon {
	switch t := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{t}
	case orb.MultiPolygon:
		return t
	case orb.Collection:
		var out orb.MultiPolygon
		for _, c := range t {
			out = append(out, polygonsOf(c)...)
		}
		return out
	}
	return nil
}

// withPair converts both operands and runs fn; conversion failures yield
// the zero value of T.
func withPair[T any](a, b orb.MultiPolygon, fn func(ga, gb *geos.Geom) T) (result T) {
	ga, err := toGEOS(a)
	if err != nil {
		return result
	}
	defer ga.Destroy()
	gb, err := toGEOS(b)
	if err != nil {
		return result
	}
	defer gb.Destroy()
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
		}
	}()
	return fn(ga, gb)
}

// withGeom converts mp and runs fn; conversion failures and GEOS panics
// yield fallback.
func withGeom[T any](mp orb.MultiPolygon, fallback T, fn func(g *geos.Geom) T) (result T) {
	g, err := toGEOS(mp)
	if err != nil {
		return fallback
	}
	defer g.Destroy()
	defer func() {
		if r := recover(); r != nil {
			result = fallback
		}
	}()
	return fn(g)
}

// IsValid reports whether mp is non-empty and valid per GEOS.
func (GEOSKernel) IsValid(mp orb.MultiPolygon) bool {
	return withGeom(mp, false, func(g *geos.Geom) bool { return g.IsValid() })
}

// ValidReason returns "" for valid geometries and the GEOS reason otherwise.
func (GEOSKernel) ValidReason(mp orb.MultiPolygon) string {
	if !wellFormed(mp) {
		return "malformed multipolygon"
	}
	return withGeom(mp, "invalid geometry", func(g *geos.Geom) string {
		if g.IsValid() {
			return ""
		}
		return g.IsValidReason()
	})
}

// MakeValid repairs mp with GEOS and keeps the polygonal components.
func (GEOSKernel) MakeValid(mp orb.MultiPolygon) (result orb.MultiPolygon, err error) {
	g, err := toGEOS(mp)
	if err != nil {
		return nil, err
	}
	defer g.Destroy()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, NewError(ErrCodeGeometry, "make valid: %v", r)
		}
	}()
	fixed := g.MakeValid()
	defer fixed.Destroy()
	return fromGEOS(fixed)
}

// Union combines all inputs pairwise into one multipolygon.
func (GEOSKernel) Union(mps ...orb.MultiPolygon) (result orb.MultiPolygon, err error) {
	if len(mps) == 0 {
		return nil, nil
	}
	acc, err := toGEOS(mps[0])
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, NewError(ErrCodeGeometry, "union: %v", r)
		}
	}()
	for i, mp := range mps[1:] {
		g, err := toGEOS(mp)
		if err != nil {
			acc.Destroy()
			return nil, fmt.Errorf("union operand %d: %w", i+1, err)
		}
		merged := acc.Union(g)
		acc.Destroy()
		g.Destroy()
		acc = merged
	}
	defer acc.Destroy()
	return fromGEOS(acc)
}

func (GEOSKernel) Contains(a, b orb.MultiPolygon) bool {
	return withPair(a, b, func(ga, gb *geos.Geom) bool { return ga.Contains(gb) })
}

// Distance returns the minimum planar distance between a and b, or +Inf
// when either cannot be converted.
func (GEOSKernel) Distance(a, b orb.MultiPolygon) float64 {
	if !wellFormed(a) || !wellFormed(b) {
		return math.Inf(1)
	}
	return withPair(a, b, func(ga, gb *geos.Geom) float64 { return ga.Distance(gb) })
}

func (GEOSKernel) Intersects(a, b orb.MultiPolygon) bool {
	return withPair(a, b, func(ga, gb *geos.Geom) bool { return ga.Intersects(gb) })
}

func (GEOSKernel) Equals(a, b orb.MultiPolygon) bool {
	return withPair(a, b, func(ga, gb *geos.Geom) bool { return ga.Equals(gb) })
}

func (GEOSKernel) IntersectionArea(a, b orb.MultiPolygon) float64 {
	return withPair(a, b, func(ga, gb *geos.Geom) float64 {
		inter := ga.Intersection(gb)
		defer inter.Destroy()
		return inter.Area()
	})
}

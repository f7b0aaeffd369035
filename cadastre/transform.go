package cadastre

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Transformer maps coordinates between reference systems. The engine only
// delegates to it; it never reasons about reference systems itself.
type Transformer interface {
	Apply(p orb.Point) orb.Point
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a" yaml:"a"`
	B  float64 `json:"b" yaml:"b"`
	Tx float64 `json:"tx" yaml:"tx"`
	C  float64 `json:"c" yaml:"c"`
	D  float64 `json:"d" yaml:"d"`
	Ty float64 `json:"ty" yaml:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, D: 1}
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, Tx: tx, D: 1, Ty: ty}
}

// RotationDeg creates a rotation transform (angle in degrees, around origin)
func RotationDeg(degrees float64) AffineMatrix {
	rad := degrees * math.Pi / 180.0
	cos, sin := math.Cos(rad), math.Sin(rad)
	return AffineMatrix{A: cos, B: -sin, C: sin, D: cos}
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, D: sy}
}

// Apply transforms a single point.
func (m AffineMatrix) Apply(p orb.Point) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.Tx,
		m.C*p[0] + m.D*p[1] + m.Ty,
	}
}

// Multiply composes two transforms: applying the result equals applying
// other first, then m.
func (m AffineMatrix) Multiply(other AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m.A*other.A + m.B*other.C,
		B:  m.A*other.B + m.B*other.D,
		Tx: m.A*other.Tx + m.B*other.Ty + m.Tx,
		C:  m.C*other.A + m.D*other.C,
		D:  m.C*other.B + m.D*other.D,
		Ty: m.C*other.Tx + m.D*other.Ty + m.Ty,
	}
}

// Determinant of the linear part.
func (m AffineMatrix) Determinant() float64 {
	return m.A*m.D - m.B*m.C
}

// Inverse returns the inverse transform, or identity if m is singular.
func (m AffineMatrix) Inverse() AffineMatrix {
	det := m.Determinant()
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}
}

// TransformFeatureSet rewrites every geometry of fs through t.
func TransformFeatureSet(fs *FeatureSet, t Transformer) {
	changes := make(map[FeatureID]orb.Geometry, fs.Len())
	for _, f := range fs.Features() {
		if f.Geometry == nil {
			continue
		}
		changes[f.ID] = project.Geometry(orb.Clone(f.Geometry), t.Apply)
	}
	fs.ChangeGeometries(changes)
}

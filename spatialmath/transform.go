// Package spatialmath defines the rigid transforms, quaternion helpers and Euler conversion used to
// report the end effector pose.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Transform is a rigid transform: rotate by Rotation, then translate by Translation. Translation
// is in meters. Rotation is a unit quaternion with Real=w, Imag=x, Jmag=y, Kmag=z.
type Transform struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// NewZeroTransform returns the identity transform.
func NewZeroTransform() Transform {
	return Transform{Rotation: quat.Number{Real: 1}}
}

// NewTransform builds a transform from a translation and a rotation quaternion. The quaternion is
// normalized; a zero quaternion becomes the identity rotation.
func NewTransform(translation r3.Vector, rotation quat.Number) Transform {
	return Transform{Translation: translation, Rotation: Normalize(rotation)}
}

// NewTransformFromXYZRPY builds a transform from a URDF style origin: xyz in meters and fixed
// axis roll, pitch, yaw in radians.
func NewTransformFromXYZRPY(xyz, rpy [3]float64) Transform {
	return Transform{
		Translation: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		Rotation:    QuatFromRPY(rpy[0], rpy[1], rpy[2]),
	}
}

// Compose returns the transform that applies other in the frame of t, i.e. T_a_c = T_a_b.Compose(T_b_c).
func (t Transform) Compose(other Transform) Transform {
	return Transform{
		Translation: t.Translation.Add(RotatePoint(t.Rotation, other.Translation)),
		Rotation:    Normalize(quat.Mul(t.Rotation, other.Rotation)),
	}
}

// Inverse returns the transform that undoes t.
func (t Transform) Inverse() Transform {
	inv := quat.Conj(t.Rotation)
	return Transform{
		Translation: RotatePoint(inv, t.Translation).Mul(-1),
		Rotation:    inv,
	}
}

// Apply maps a point expressed in the child frame into the parent frame.
func (t Transform) Apply(point r3.Vector) r3.Vector {
	return t.Translation.Add(RotatePoint(t.Rotation, point))
}

// AlmostEqual compares both parts of two transforms with tolerance epsilon.
func (t Transform) AlmostEqual(other Transform, epsilon float64) bool {
	return R3VectorAlmostEqual(t.Translation, other.Translation, epsilon) &&
		QuaternionAlmostEqual(t.Rotation, other.Rotation, epsilon)
}

// RotatePoint rotates a vector by a unit quaternion.
func RotatePoint(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// QuatFromAxisAngle returns the rotation of angle radians about axis. A zero axis gives the identity.
func QuatFromAxisAngle(axis r3.Vector, angle float64) quat.Number {
	norm := axis.Norm()
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	axis = axis.Mul(1 / norm)
	sin, cos := math.Sincos(angle / 2)
	return quat.Number{Real: cos, Imag: axis.X * sin, Jmag: axis.Y * sin, Kmag: axis.Z * sin}
}

// QuatFromRPY converts fixed axis roll (x), pitch (y), yaw (z) angles, applied in that order, to a
// quaternion. This is the URDF origin convention.
func QuatFromRPY(roll, pitch, yaw float64) quat.Number {
	qx := QuatFromAxisAngle(r3.Vector{X: 1}, roll)
	qy := QuatFromAxisAngle(r3.Vector{Y: 1}, pitch)
	qz := QuatFromAxisAngle(r3.Vector{Z: 1}, yaw)
	return Normalize(quat.Mul(qz, quat.Mul(qy, qx)))
}

// Normalize scales q to unit length. The zero quaternion maps to the identity.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/norm, q)
}

// QuaternionAlmostEqual compares two quaternions componentwise. q and -q are treated as equal
// since they encode the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	near := func(a, b quat.Number) bool {
		return math.Abs(a.Real-b.Real) <= tol &&
			math.Abs(a.Imag-b.Imag) <= tol &&
			math.Abs(a.Jmag-b.Jmag) <= tol &&
			math.Abs(a.Kmag-b.Kmag) <= tol
	}
	return near(a, b) || near(a, quat.Scale(-1, b))
}

// R3VectorAlmostEqual compares two vectors componentwise.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) <= epsilon &&
		math.Abs(a.Y-b.Y) <= epsilon &&
		math.Abs(a.Z-b.Z) <= epsilon
}

package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/uu-controllers/schunkgui/utils"
)

const (
	// poleEpsilon is how close qx*qy + qz*qw must be to ±0.5 to count as gimbal lock.
	poleEpsilon = 0.001
	// angleSnapEpsilon is the radian noise floor below which Euler angles report as zero.
	angleSnapEpsilon = 0.005
)

// EulerAngles are heading, attitude and bank in radians. They are displayed as roll, pitch and
// yaw in that order.
type EulerAngles struct {
	Heading  float64
	Attitude float64
	Bank     float64
}

// QuatToEulerAngles converts a unit quaternion to heading/attitude/bank. At the poles
// (qx*qy + qz*qw = ±0.5) bank is undefined; it is set to 0 and the whole rotation is folded into
// heading.
func QuatToEulerAngles(q quat.Number) EulerAngles {
	qw, qx, qy, qz := q.Real, q.Imag, q.Jmag, q.Kmag

	// asin is undefined past ±1 and rounding can push a unit quaternion just over.
	sinAttitude := utils.Clamp(2*qx*qy+2*qz*qw, -1, 1)
	angles := EulerAngles{
		Heading:  math.Atan2(2*qy*qw-2*qx*qz, 1-2*qy*qy-2*qz*qz),
		Attitude: math.Asin(sinAttitude),
		Bank:     math.Atan2(2*qx*qw-2*qy*qz, 1-2*qx*qx-2*qz*qz),
	}

	test := qx*qy + qz*qw
	switch {
	case math.Abs(test-0.5) < poleEpsilon:
		angles.Heading = 2 * math.Atan2(qx, qw)
		angles.Bank = 0
	case math.Abs(test+0.5) < poleEpsilon:
		angles.Heading = -2 * math.Atan2(qx, qw)
		angles.Bank = 0
	}
	return angles
}

// Snapped returns a copy where every angle within the noise floor is exactly zero.
func (ea EulerAngles) Snapped() EulerAngles {
	return EulerAngles{
		Heading:  utils.SnapToZero(ea.Heading, angleSnapEpsilon),
		Attitude: utils.SnapToZero(ea.Attitude, angleSnapEpsilon),
		Bank:     utils.SnapToZero(ea.Bank, angleSnapEpsilon),
	}
}

// Degrees returns heading, attitude and bank in degrees.
func (ea EulerAngles) Degrees() [3]float64 {
	return [3]float64{utils.RadToDeg(ea.Heading), utils.RadToDeg(ea.Attitude), utils.RadToDeg(ea.Bank)}
}

package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/uu-controllers/schunkgui/utils"
)

// translationSnapEpsilon is the noise floor, in meters, below which a position component reports as zero.
const translationSnapEpsilon = 0.005

// EndEffectorPose is the tip frame expressed in the root frame. It is derived on every poll and
// never stored.
type EndEffectorPose struct {
	Position    r3.Vector
	Orientation quat.Number
	Euler       EulerAngles
}

// NewEndEffectorPose derives the reported pose from a root to tip transform: translation components
// and Euler angles inside their noise floors are snapped to zero. The quaternion is reported as is.
func NewEndEffectorPose(t Transform) EndEffectorPose {
	return EndEffectorPose{
		Position: r3.Vector{
			X: utils.SnapToZero(t.Translation.X, translationSnapEpsilon),
			Y: utils.SnapToZero(t.Translation.Y, translationSnapEpsilon),
			Z: utils.SnapToZero(t.Translation.Z, translationSnapEpsilon),
		},
		Orientation: t.Rotation,
		Euler:       QuatToEulerAngles(t.Rotation).Snapped(),
	}
}

// ZeroEndEffectorPose is reported when the transform cannot be looked up. All seven components,
// including the quaternion's w, are zero.
func ZeroEndEffectorPose() EndEffectorPose {
	return EndEffectorPose{}
}

// IsZero reports whether every component of the pose is zero.
func (p EndEffectorPose) IsZero() bool {
	return p == EndEffectorPose{}
}

// Components returns x, y, z, qx, qy, qz, qw in that order.
func (p EndEffectorPose) Components() [7]float64 {
	return [7]float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag, p.Orientation.Real,
	}
}

// RPYDegrees returns the reported roll, pitch and yaw in degrees.
func (p EndEffectorPose) RPYDegrees() [3]float64 {
	return p.Euler.Degrees()
}

package referenceframe

import (
	"math"

	"github.com/pkg/errors"
)

// JointConfig is one controllable joint: limits in radians and the offset used as its zero
// command. It never changes after load.
type JointConfig struct {
	Name       string
	Type       string
	Min        float64
	Max        float64
	ZeroOffset float64
}

// Contains reports whether value (radians) lies inside [Min, Max].
func (j JointConfig) Contains(value float64) bool {
	return value >= j.Min && value <= j.Max
}

// zeroOffset is the midpoint of a window that excludes zero and zero otherwise.
func zeroOffset(lower, upper float64) float64 {
	if lower > 0 || upper < 0 {
		return (lower + upper) / 2
	}
	return 0
}

// LoadJoints filters a parsed description into the ordered list of controllable joints. Fixed
// joints, joints named in dependent and joints that mimic another are skipped. Continuous joints get
// [-π, π]; every other kept joint needs a limit element.
func LoadJoints(urdf *URDFConfig, dependent []string) ([]JointConfig, error) {
	skip := make(map[string]struct{}, len(dependent))
	for _, name := range dependent {
		skip[name] = struct{}{}
	}

	joints := make([]JointConfig, 0, len(urdf.Joints))
	seen := map[string]struct{}{}
	for _, elem := range urdf.Joints {
		if elem.Type == FixedJoint {
			continue
		}
		if _, ok := skip[elem.Name]; ok || elem.Mimic != nil {
			continue
		}
		if _, dup := seen[elem.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedDescription, "joint %q declared twice", elem.Name)
		}
		seen[elem.Name] = struct{}{}

		joint := JointConfig{Name: elem.Name, Type: elem.Type}
		switch elem.Type {
		case ContinuousJoint:
			joint.Min, joint.Max = -math.Pi, math.Pi
		default:
			if elem.Limit == nil {
				return nil, NewMissingLimitError(elem.Name)
			}
			lower, upper, err := elem.Limit.Bounds()
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedDescription, "joint %q: %v", elem.Name, err)
			}
			if lower > upper {
				return nil, errors.Wrapf(ErrMalformedDescription, "joint %q: lower limit %v above upper %v", elem.Name, lower, upper)
			}
			joint.Min, joint.Max = lower, upper
		}
		joint.ZeroOffset = zeroOffset(joint.Min, joint.Max)
		joints = append(joints, joint)
	}

	if len(joints) == 0 {
		return nil, ErrNoJointsFound
	}
	return joints, nil
}

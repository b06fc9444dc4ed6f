package referenceframe

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Registry maps joint names to stable indices 0..N-1, assigned in document order at load time. It
// is never mutated after construction and is safe to share between goroutines.
type Registry struct {
	joints  []JointConfig
	indices map[string]int
}

// MaxJoints is how many joints the driver can address; single module commands carry the index as
// an int8.
const MaxJoints = math.MaxInt8 + 1

// NewRegistry builds a registry from the loader's output.
func NewRegistry(joints []JointConfig) (*Registry, error) {
	if len(joints) == 0 {
		return nil, ErrNoJointsFound
	}
	if len(joints) > MaxJoints {
		return nil, errors.Wrapf(ErrMalformedDescription, "%d controllable joints, at most %d can be addressed", len(joints), MaxJoints)
	}
	indices := make(map[string]int, len(joints))
	for i, joint := range joints {
		if _, dup := indices[joint.Name]; dup {
			return nil, errors.Wrapf(ErrMalformedDescription, "joint %q declared twice", joint.Name)
		}
		indices[joint.Name] = i
	}
	return &Registry{joints: append([]JointConfig(nil), joints...), indices: indices}, nil
}

// LoadRegistry parses description XML and builds the registry in one step.
func LoadRegistry(xmlData []byte, dependent []string) (*Registry, error) {
	urdf, err := ParseURDF(xmlData)
	if err != nil {
		return nil, err
	}
	joints, err := LoadJoints(urdf, dependent)
	if err != nil {
		return nil, err
	}
	return NewRegistry(joints)
}

// Count returns N.
func (r *Registry) Count() int {
	return len(r.joints)
}

// IndexOf returns the stable index of a joint name.
func (r *Registry) IndexOf(name string) (int, bool) {
	i, ok := r.indices[name]
	return i, ok
}

// Valid reports whether index is inside 0..N-1.
func (r *Registry) Valid(index int) bool {
	return index >= 0 && index < len(r.joints)
}

// Joint returns the configuration at index.
func (r *Registry) Joint(index int) (JointConfig, error) {
	if !r.Valid(index) {
		return JointConfig{}, NewIndexOutOfRangeError(index, len(r.joints))
	}
	return r.joints[index], nil
}

// NameOf returns the joint name at index.
func (r *Registry) NameOf(index int) (string, error) {
	joint, err := r.Joint(index)
	return joint.Name, err
}

// LimitsOf returns the joint window in radians.
func (r *Registry) LimitsOf(index int) (float64, float64, error) {
	joint, err := r.Joint(index)
	return joint.Min, joint.Max, err
}

// Names returns every joint name in index order.
func (r *Registry) Names() []string {
	return lo.Map(r.joints, func(j JointConfig, _ int) string { return j.Name })
}

// Joints returns a copy of every joint in index order.
func (r *Registry) Joints() []JointConfig {
	return append([]JointConfig(nil), r.joints...)
}

// ZeroOffsets returns each joint's zero offset in index order.
func (r *Registry) ZeroOffsets() []float64 {
	return lo.Map(r.joints, func(j JointConfig, _ int) float64 { return j.ZeroOffset })
}

package telemetry

import (
	"time"

	"github.com/uu-controllers/schunkgui/ros"
)

// KinematicFrame is one joint state message together with its stable index to message index map.
// A frame is built completely before it is published and never changes afterwards.
type KinematicFrame struct {
	Msg      ros.JointState
	Received time.Time
	index    map[int]int
}

// Lookup returns where the joint with the given stable index sits in Msg.
func (f *KinematicFrame) Lookup(stableIndex int) (int, bool) {
	if f == nil {
		return 0, false
	}
	raw, ok := f.index[stableIndex]
	return raw, ok
}

// Position returns the joint's position, or false when the frame has none for it.
func (f *KinematicFrame) Position(stableIndex int) (float64, bool) {
	return f.field(stableIndex, func(m *ros.JointState) []float64 { return m.Position })
}

// Velocity returns the joint's velocity, or false when the frame has none for it.
func (f *KinematicFrame) Velocity(stableIndex int) (float64, bool) {
	return f.field(stableIndex, func(m *ros.JointState) []float64 { return m.Velocity })
}

// Effort returns the joint's effort, or false when the frame has none for it.
func (f *KinematicFrame) Effort(stableIndex int) (float64, bool) {
	return f.field(stableIndex, func(m *ros.JointState) []float64 { return m.Effort })
}

// field guards against value arrays shorter than the name array.
func (f *KinematicFrame) field(stableIndex int, values func(*ros.JointState) []float64) (float64, bool) {
	raw, ok := f.Lookup(stableIndex)
	if !ok {
		return 0, false
	}
	vals := values(&f.Msg)
	if raw >= len(vals) {
		return 0, false
	}
	return vals[raw], true
}

// Len is how many known joints the frame covers.
func (f *KinematicFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.index)
}

// StatusFrame is one device status message and its index map.
type StatusFrame struct {
	Msg      ros.SchunkStatus
	Received time.Time
	index    map[int]int
}

// Lookup returns where the joint with the given stable index sits in Msg.Joints.
func (f *StatusFrame) Lookup(stableIndex int) (int, bool) {
	if f == nil {
		return 0, false
	}
	raw, ok := f.index[stableIndex]
	return raw, ok
}

// Joint returns the device status of one joint.
func (f *StatusFrame) Joint(stableIndex int) (ros.JointStatus, bool) {
	raw, ok := f.Lookup(stableIndex)
	if !ok || raw >= len(f.Msg.Joints) {
		return ros.JointStatus{}, false
	}
	return f.Msg.Joints[raw], true
}

// Len is how many known joints the frame covers.
func (f *StatusFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.index)
}

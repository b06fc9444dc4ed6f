// Package kinematics computes forward kinematics over a URDF joint tree. There is no inverse
// kinematics here; the simulator only needs link poses for the joint values it is commanded to.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/spatialmath"
)

// Joint connects a parent link to a child link. Origin places the child at zero joint value; the
// joint value then rotates about, or slides along, Axis in the child frame.
type Joint struct {
	Name   string
	Type   string
	Parent string
	Child  string
	Origin spatialmath.Transform
	Axis   r3.Vector
	Min    float64
	Max    float64

	// mimic joints follow Multiplier*source + Offset
	MimicOf    string
	Multiplier float64
	Offset     float64
}

// Movable reports whether the joint has a value.
func (j Joint) Movable() bool {
	return j.Type != referenceframe.FixedJoint
}

// Local is the parent to child transform at joint value q.
func (j Joint) Local(q float64) spatialmath.Transform {
	switch j.Type {
	case referenceframe.RevoluteJoint, referenceframe.ContinuousJoint:
		return j.Origin.Compose(spatialmath.Transform{Rotation: spatialmath.QuatFromAxisAngle(j.Axis, q)})
	case referenceframe.PrismaticJoint:
		return j.Origin.Compose(spatialmath.NewTransform(j.Axis.Normalize().Mul(q), spatialmath.NewZeroTransform().Rotation))
	default:
		return j.Origin
	}
}

// Model is a tree of links connected by joints.
type Model struct {
	name   string
	root   string
	tree   *simple.DirectedGraph
	ids    map[string]int64
	joints []Joint // parents before children
	byName map[string]int
}

// NewModelFromURDF builds the kinematic tree of a parsed description. The links must form a single
// tree and every mimic joint must name an existing movable joint.
func NewModelFromURDF(cfg *referenceframe.URDFConfig) (*Model, error) {
	m := &Model{
		name:   cfg.Name,
		tree:   simple.NewDirectedGraph(),
		ids:    map[string]int64{},
		byName: map[string]int{},
	}
	node := func(link string) graph.Node {
		if id, ok := m.ids[link]; ok {
			return m.tree.Node(id)
		}
		n := m.tree.NewNode()
		m.tree.AddNode(n)
		m.ids[link] = n.ID()
		return n
	}
	for _, link := range cfg.Links {
		node(link.Name)
	}

	byChild := map[int64]Joint{}
	for _, elem := range cfg.Joints {
		joint, err := jointFromURDF(elem)
		if err != nil {
			return nil, err
		}
		if joint.Parent == joint.Child {
			return nil, errors.Errorf("joint %q connects link %q to itself", joint.Name, joint.Parent)
		}
		parent, child := node(joint.Parent), node(joint.Child)
		if _, taken := byChild[child.ID()]; taken {
			return nil, errors.Errorf("link %q has more than one parent joint", joint.Child)
		}
		m.tree.SetEdge(m.tree.NewEdge(parent, child))
		byChild[child.ID()] = joint
	}

	sorted, err := topo.Sort(m.tree)
	if err != nil {
		return nil, errors.Wrap(err, "kinematic tree has a cycle")
	}
	var roots []string
	names := make(map[int64]string, len(m.ids))
	for name, id := range m.ids {
		names[id] = name
	}
	for _, n := range sorted {
		if m.tree.To(n.ID()).Len() == 0 {
			roots = append(roots, names[n.ID()])
		}
		if joint, ok := byChild[n.ID()]; ok {
			m.byName[joint.Name] = len(m.joints)
			m.joints = append(m.joints, joint)
		}
	}
	if len(roots) != 1 {
		return nil, errors.Errorf("expected one root link, found %d: %v", len(roots), roots)
	}
	m.root = roots[0]

	for _, joint := range m.joints {
		if joint.MimicOf == "" {
			continue
		}
		src, ok := m.byName[joint.MimicOf]
		if !ok || !m.joints[src].Movable() || m.joints[src].MimicOf != "" {
			return nil, errors.Errorf("joint %q mimics %q which is not a movable joint", joint.Name, joint.MimicOf)
		}
	}
	return m, nil
}

func jointFromURDF(elem referenceframe.URDFJoint) (Joint, error) {
	origin, err := elem.Origin.Transform()
	if err != nil {
		return Joint{}, errors.Wrapf(err, "joint %q", elem.Name)
	}
	axis, err := elem.Axis.Vector()
	if err != nil {
		return Joint{}, errors.Wrapf(err, "joint %q axis", elem.Name)
	}
	joint := Joint{
		Name:   elem.Name,
		Type:   elem.Type,
		Parent: elem.Parent.Link,
		Child:  elem.Child.Link,
		Origin: origin,
		Axis:   r3.Vector{X: axis[0], Y: axis[1], Z: axis[2]},
	}
	switch elem.Type {
	case referenceframe.FixedJoint:
	case referenceframe.ContinuousJoint:
		joint.Min, joint.Max = -math.Pi, math.Pi
	default:
		// planar and floating joints keep their limits but do not move the child link
		if elem.Limit != nil {
			if joint.Min, joint.Max, err = elem.Limit.Bounds(); err != nil {
				return Joint{}, errors.Wrapf(err, "joint %q", elem.Name)
			}
		}
	}
	if joint.Movable() && joint.Axis.Norm() == 0 {
		return Joint{}, errors.Errorf("joint %q has a zero axis", elem.Name)
	}
	if elem.Mimic != nil {
		joint.MimicOf = elem.Mimic.Joint
		joint.Multiplier, joint.Offset = elem.Mimic.MultiplierOffset()
	}
	return joint, nil
}

// Name is the robot name.
func (m *Model) Name() string {
	return m.name
}

// Root is the link every other link hangs from.
func (m *Model) Root() string {
	return m.root
}

// Joints returns every joint, parents before children.
func (m *Model) Joints() []Joint {
	return append([]Joint(nil), m.joints...)
}

// Joint returns a joint by name.
func (m *Model) Joint(name string) (Joint, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Joint{}, false
	}
	return m.joints[i], true
}

// MovableJoints lists the joints that carry a value, mimic joints included, in tree order.
func (m *Model) MovableJoints() []string {
	var names []string
	for _, j := range m.joints {
		if j.Movable() {
			names = append(names, j.Name)
		}
	}
	return names
}

// Resolve returns a value for every movable joint: independent joints take theirs from positions
// (zero when missing) and mimic joints are computed from their source.
func (m *Model) Resolve(positions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m.joints))
	for _, j := range m.joints {
		if j.Movable() && j.MimicOf == "" {
			out[j.Name] = positions[j.Name]
		}
	}
	for _, j := range m.joints {
		if j.MimicOf != "" {
			out[j.Name] = j.Multiplier*out[j.MimicOf] + j.Offset
		}
	}
	return out
}

// LocalTransforms returns each joint's parent to child transform keyed by joint name.
func (m *Model) LocalTransforms(positions map[string]float64) map[string]spatialmath.Transform {
	values := m.Resolve(positions)
	out := make(map[string]spatialmath.Transform, len(m.joints))
	for _, j := range m.joints {
		out[j.Name] = j.Local(values[j.Name])
	}
	return out
}

// LinkPoses returns the pose of every link in the root link's frame.
func (m *Model) LinkPoses(positions map[string]float64) map[string]spatialmath.Transform {
	local := m.LocalTransforms(positions)
	poses := map[string]spatialmath.Transform{m.root: spatialmath.NewZeroTransform()}
	for _, j := range m.joints {
		poses[j.Child] = poses[j.Parent].Compose(local[j.Name])
	}
	return poses
}

// Transform returns the pose of tip expressed in base for the given joint values.
func (m *Model) Transform(positions map[string]float64, base, tip string) (spatialmath.Transform, error) {
	poses := m.LinkPoses(positions)
	basePose, ok := poses[base]
	if !ok {
		return spatialmath.Transform{}, errors.Errorf("unknown link %q", base)
	}
	tipPose, ok := poses[tip]
	if !ok {
		return spatialmath.Transform{}, errors.Errorf("unknown link %q", tip)
	}
	return basePose.Inverse().Compose(tipPose), nil
}

package referenceframe

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestLoadJointsFromFile(t *testing.T) {
	urdf, err := ParseURDFFile("testdata/lwa.urdf")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, urdf.Name, test.ShouldEqual, "schunk_lwa")
	test.That(t, urdf.Joints, test.ShouldHaveLength, 11)

	joints, err := LoadJoints(urdf, []string{"gripper_finger_left_joint"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, joints, test.ShouldHaveLength, 7)
	for i, joint := range joints {
		test.That(t, joint.Name, test.ShouldEqual, []string{
			"arm_1_joint", "arm_2_joint", "arm_3_joint", "arm_4_joint",
			"arm_5_joint", "arm_6_joint", "arm_7_joint",
		}[i])
	}

	test.That(t, joints[0].Min, test.ShouldEqual, -3.12)
	test.That(t, joints[0].Max, test.ShouldEqual, 3.12)
	test.That(t, joints[0].ZeroOffset, test.ShouldEqual, 0.)

	// [0.2, 2.07] excludes zero so the offset is the midpoint.
	test.That(t, joints[5].ZeroOffset, test.ShouldAlmostEqual, 1.135)

	test.That(t, joints[6].Type, test.ShouldEqual, ContinuousJoint)
	test.That(t, joints[6].Min, test.ShouldEqual, -math.Pi)
	test.That(t, joints[6].Max, test.ShouldEqual, math.Pi)
	test.That(t, joints[6].ZeroOffset, test.ShouldEqual, 0.)
}

func TestLoadJointsKeepsNonDependentPrismatic(t *testing.T) {
	urdf, err := ParseURDFFile("testdata/lwa.urdf")
	test.That(t, err, test.ShouldBeNil)

	joints, err := LoadJoints(urdf, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, joints, test.ShouldHaveLength, 8)
	// The mimicking right finger is never controllable.
	test.That(t, joints[7].Name, test.ShouldEqual, "gripper_finger_left_joint")
	test.That(t, joints[7].ZeroOffset, test.ShouldEqual, 0.)
}

func TestZeroOffset(t *testing.T) {
	for _, tc := range []struct {
		lower, upper, want float64
	}{
		{-1, 1, 0},
		{0, 2, 0},
		{-2, 0, 0},
		{0.5, 1.5, 1},
		{-1.5, -0.5, -1},
	} {
		test.That(t, zeroOffset(tc.lower, tc.upper), test.ShouldEqual, tc.want)
	}
}

func TestLoadJointsErrors(t *testing.T) {
	t.Run("missing limit", func(t *testing.T) {
		urdf, err := ParseURDF([]byte(`<robot name="r">
			<joint name="a" type="revolute"><parent link="x"/><child link="y"/></joint>
		</robot>`))
		test.That(t, err, test.ShouldBeNil)
		_, err = LoadJoints(urdf, nil)
		test.That(t, errors.Is(err, ErrMalformedDescription), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, `"a"`)
	})

	t.Run("missing limit attribute", func(t *testing.T) {
		urdf, err := ParseURDF([]byte(`<robot name="r">
			<joint name="a" type="revolute"><limit upper="1"/></joint>
		</robot>`))
		test.That(t, err, test.ShouldBeNil)
		_, err = LoadJoints(urdf, nil)
		test.That(t, errors.Is(err, ErrMalformedDescription), test.ShouldBeTrue)
	})

	t.Run("missing limit on dependent joint is ignored", func(t *testing.T) {
		urdf, err := ParseURDF([]byte(`<robot name="r">
			<joint name="a" type="revolute"/>
			<joint name="b" type="continuous"/>
		</robot>`))
		test.That(t, err, test.ShouldBeNil)
		joints, err := LoadJoints(urdf, []string{"a"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, joints, test.ShouldHaveLength, 1)
		test.That(t, joints[0].Name, test.ShouldEqual, "b")
	})

	t.Run("only fixed and mimic joints", func(t *testing.T) {
		urdf, err := ParseURDF([]byte(`<robot name="r">
			<joint name="a" type="fixed"/>
			<joint name="b" type="revolute"><limit lower="0" upper="1"/><mimic joint="c"/></joint>
		</robot>`))
		test.That(t, err, test.ShouldBeNil)
		_, err = LoadJoints(urdf, nil)
		test.That(t, errors.Is(err, ErrNoJointsFound), test.ShouldBeTrue)
	})

	t.Run("unparsable xml", func(t *testing.T) {
		_, err := ParseURDF([]byte(`<robot><joint`))
		test.That(t, errors.Is(err, ErrMalformedDescription), test.ShouldBeTrue)

		_, err = ParseURDF(nil)
		test.That(t, errors.Is(err, ErrMalformedDescription), test.ShouldBeTrue)
	})

	t.Run("other types need limits", func(t *testing.T) {
		urdf, err := ParseURDF([]byte(`<robot name="r"><joint name="a" type="floating"/></robot>`))
		test.That(t, err, test.ShouldBeNil)
		_, err = LoadJoints(urdf, nil)
		test.That(t, errors.Is(err, ErrMalformedDescription), test.ShouldBeTrue)

		urdf, err = ParseURDF([]byte(`<robot name="r">
			<joint name="slide" type="planar"><limit lower="0.5" upper="1.5"/></joint>
		</robot>`))
		test.That(t, err, test.ShouldBeNil)
		joints, err := LoadJoints(urdf, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(joints), test.ShouldEqual, 1)
		test.That(t, joints[0].Type, test.ShouldEqual, "planar")
		test.That(t, joints[0].Min, test.ShouldEqual, 0.5)
		test.That(t, joints[0].Max, test.ShouldEqual, 1.5)
		test.That(t, joints[0].ZeroOffset, test.ShouldEqual, 1.0)
	})
}

func TestOriginAndAxis(t *testing.T) {
	pose := &URDFPose{XYZ: "0 0 0.3", RPY: "0 0 1.5707963267948966"}
	transform, err := pose.Transform()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, transform.Translation.Z, test.ShouldEqual, 0.3)
	test.That(t, transform.Rotation.Kmag, test.ShouldAlmostEqual, math.Sqrt2/2)

	var nilPose *URDFPose
	transform, err = nilPose.Transform()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, transform.Rotation.Real, test.ShouldEqual, 1.)

	_, err = (&URDFPose{XYZ: "0 0"}).Transform()
	test.That(t, err, test.ShouldNotBeNil)

	var nilAxis *URDFAxis
	axis, err := nilAxis.Vector()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, axis, test.ShouldResemble, [3]float64{1, 0, 0})

	mimic := &URDFMimic{Joint: "a"}
	multiplier, offset := mimic.MultiplierOffset()
	test.That(t, multiplier, test.ShouldEqual, 1.)
	test.That(t, offset, test.ShouldEqual, 0.)
}

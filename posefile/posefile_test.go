package posefile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestPoseRoundTripAndTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.pose")
	test.That(t, SavePose(path, []float64{0, 30, -12.5}), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, WritePose(&buf, []float64{0, 30, -12.5}), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldEqual, "0.0,30.0,-12.5\n")

	values, err := LoadPose(path, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldResemble, []float64{0, 30})

	values, err = LoadPose(path, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldResemble, []float64{0, 30, -12.5})
}

func TestReadPoseFailsWhole(t *testing.T) {
	values, err := ReadPose(strings.NewReader("1.0, abc, 3\n"), 3)
	test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	test.That(t, values, test.ShouldBeNil)

	// only the values that will be applied are parsed
	values, err = ReadPose(strings.NewReader("1.0, 2.0, abc\n"), 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldResemble, []float64{1, 2})

	_, err = ReadPose(strings.NewReader(""), 3)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLibraryEditing(t *testing.T) {
	l := NewLibrary()
	test.That(t, l.UniqueName(), test.ShouldEqual, "joints_angles_0")
	test.That(t, l.Insert(l.UniqueName(), []float64{1, 2}, AtEnd, ""), test.ShouldBeNil)
	test.That(t, l.UniqueName(), test.ShouldEqual, "joints_angles_1")
	test.That(t, l.Insert("cam down", []float64{0, 30, 75}, AtEnd, ""), test.ShouldBeNil)
	test.That(t, l.Insert("first", nil, Before, "joints_angles_0"), test.ShouldBeNil)
	test.That(t, l.Insert("middle", []float64{9}, After, "joints_angles_0"), test.ShouldBeNil)
	test.That(t, l.Names(), test.ShouldResemble, []string{"first", "joints_angles_0", "middle", "cam down"})

	test.That(t, errors.Is(l.Insert("middle", nil, AtEnd, ""), ErrDuplicateName), test.ShouldBeTrue)
	test.That(t, l.Insert("  ", nil, AtEnd, ""), test.ShouldEqual, ErrEmptyName)
	test.That(t, errors.Is(l.Insert("x", nil, After, "ghost"), ErrNotFound), test.ShouldBeTrue)
	test.That(t, l.Insert("a:b", nil, AtEnd, ""), test.ShouldNotBeNil)

	got, err := l.Get("cam down")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []float64{0, 30, 75})
	got[0] = 99
	again, _ := l.Get("cam down")
	test.That(t, again[0], test.ShouldEqual, 0.0)

	test.That(t, l.Remove("joints_angles_0"), test.ShouldBeNil)
	test.That(t, l.UniqueName(), test.ShouldEqual, "joints_angles_0")
	test.That(t, errors.Is(l.Remove("joints_angles_0"), ErrNotFound), test.ShouldBeTrue)
	test.That(t, l.Len(), test.ShouldEqual, 3)
}

func TestLibraryFile(t *testing.T) {
	in := "cam down:[0.0, 30.0, 75.0, -135.0, 0.0]\n\nhome:[0.0, 0.0, 0.0, 0.0, 0.0]\nempty:[]\n"
	l, err := ReadLibrary(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Names(), test.ShouldResemble, []string{"cam down", "home", "empty"})
	vectors := l.Vectors()
	test.That(t, vectors[0].Values, test.ShouldResemble, []float64{0, 30, 75, -135, 0})
	test.That(t, vectors[2].Values, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "default.list")
	test.That(t, l.Save(path), test.ShouldBeNil)
	loaded, err := LoadLibrary(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Vectors(), test.ShouldResemble, l.Vectors())

	var out bytes.Buffer
	test.That(t, l.Write(&out), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldEqual, strings.Replace(in, "\n\n", "\n", 1))

	for _, bad := range []string{
		"no colon here\n",
		"name:0.0, 1.0\n",
		"name:[0.0, x]\n",
		"a:[1]\na:[2]\n",
	} {
		_, err := ReadLibrary(strings.NewReader(bad))
		test.That(t, err, test.ShouldNotBeNil)
	}
}

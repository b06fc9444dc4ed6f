package utils

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestAngleConversion(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldEqual, 90.)
	test.That(t, RadToDeg(DegToRad(-37.5)), test.ShouldAlmostEqual, -37.5)
}

func TestSnapAndClamp(t *testing.T) {
	test.That(t, SnapToZero(0.004, 0.005), test.ShouldEqual, 0.)
	test.That(t, SnapToZero(-0.004, 0.005), test.ShouldEqual, 0.)
	test.That(t, SnapToZero(0.005, 0.005), test.ShouldEqual, 0.005)
	test.That(t, SnapToZero(-1.2, 0.005), test.ShouldEqual, -1.2)

	test.That(t, Clamp(5, -1, 1), test.ShouldEqual, 1.)
	test.That(t, Clamp(-5, -1, 1), test.ShouldEqual, -1.)
	test.That(t, Clamp(0.5, -1, 1), test.ShouldEqual, 0.5)

	test.That(t, Float64AlmostEqual(1, 1.0005, 0.001), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.01, 0.001), test.ShouldBeFalse)
}

func TestStoppableWorkers(t *testing.T) {
	started := atomic.NewInt32(0)
	stopped := atomic.NewInt32(0)
	worker := func(ctx context.Context) {
		started.Inc()
		<-ctx.Done()
		stopped.Inc()
	}

	sw := NewStoppableWorkers(worker, worker)
	sw.AddWorkers(worker)
	sw.Stop()
	test.That(t, started.Load(), test.ShouldEqual, 3)
	test.That(t, stopped.Load(), test.ShouldEqual, 3)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Workers added after Stop never run.
	sw.AddWorkers(worker)
	sw.Stop()
	test.That(t, started.Load(), test.ShouldEqual, 3)
}

func TestExpandHomeDir(t *testing.T) {
	path, err := ExpandHomeDir("/tmp/history")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldEqual, "/tmp/history")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path, err = ExpandHomeDir("~/.schunk_history")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, path, test.ShouldEqual, filepath.Join(home, ".schunk_history"))
}

func TestResolveFile(t *testing.T) {
	_, err := os.Stat(ResolveFile("go.mod"))
	test.That(t, err, test.ShouldBeNil)
}

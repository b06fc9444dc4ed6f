package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
)

func newTestRegistry(t *testing.T) *referenceframe.Registry {
	t.Helper()
	reg, err := referenceframe.NewRegistry([]referenceframe.JointConfig{
		{Name: "a", Min: -1, Max: 1},
		{Name: "b", Min: -1, Max: 1},
		{Name: "c", Min: -1, Max: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	return reg
}

func TestKinematicSubsetAnyOrder(t *testing.T) {
	r := NewReconciler(newTestRegistry(t), nil, logging.NewTestLogger(t))

	_, ok := r.LookupKinematic(0)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = r.Position(0)
	test.That(t, ok, test.ShouldBeFalse)

	r.UpdateJointState(ros.JointState{
		Name:     []string{"c", "finger_mimic", "a"},
		Position: []float64{0.3, 9, 0.1},
	})

	raw, ok := r.LookupKinematic(2)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, raw, test.ShouldEqual, 0)
	raw, ok = r.LookupKinematic(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, raw, test.ShouldEqual, 2)
	_, ok = r.LookupKinematic(1)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, r.Kinematic().Len(), test.ShouldEqual, 2)

	pos, ok := r.Position(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pos, test.ShouldEqual, 0.1)
	_, ok = r.Kinematic().Velocity(0)
	test.That(t, ok, test.ShouldBeFalse)

	// the next message reorders everything; nothing from the previous map survives
	r.UpdateJointState(ros.JointState{Name: []string{"b", "a"}, Position: []float64{0.2}})
	raw, ok = r.LookupKinematic(1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, raw, test.ShouldEqual, 0)
	_, ok = r.LookupKinematic(2)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = r.Position(0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestUnknownStatusJointReportedOnce(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	r := NewReconciler(newTestRegistry(t), nil, logger)

	err := r.UpdateStatus(ros.SchunkStatus{Joints: []ros.JointStatus{
		{JointName: "b", Referenced: true},
		{JointName: "ghost"},
		{JointName: "a", Error: true, ErrorCode: 7},
	}})
	test.That(t, errors.Is(err, ErrUnknownStatusJoint), test.ShouldBeTrue)
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessageSnippet("missing from the robot description").Len(), test.ShouldEqual, 1)

	status, ok := r.JointStatus(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, status.ErrorCode, test.ShouldEqual, uint8(7))
	status, ok = r.JointStatus(1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, status.Referenced, test.ShouldBeTrue)
	test.That(t, r.MissingStatus(), test.ShouldResemble, []string{"c"})

	test.That(t, r.UpdateStatus(ros.SchunkStatus{Joints: []ros.JointStatus{{JointName: "a"}, {JointName: "b"}, {JointName: "c"}}}), test.ShouldBeNil)
	test.That(t, r.MissingStatus(), test.ShouldBeEmpty)
}

func TestMissingStatusBeforeFirstMessage(t *testing.T) {
	r := NewReconciler(newTestRegistry(t), nil, logging.NewTestLogger(t))
	test.That(t, r.MissingStatus(), test.ShouldResemble, []string{"a", "b", "c"})
	_, ok := r.LookupStatus(0)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFramesAreNeverTorn(t *testing.T) {
	r := NewReconciler(newTestRegistry(t), nil, logging.NewTestLogger(t))
	orders := [][]string{{"a", "b", "c"}, {"c", "b", "a"}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			names := orders[i%2]
			positions := make([]float64, len(names))
			for j, name := range names {
				positions[j] = map[string]float64{"a": 1, "b": 2, "c": 3}[name]
			}
			r.UpdateJointState(ros.JointState{Name: names, Position: positions})
		}
	}()

	for i := 0; i < 2000; i++ {
		frame := r.Kinematic()
		if frame == nil {
			continue
		}
		for stable, want := range []float64{1, 2, 3} {
			got, ok := frame.Position(stable)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, got, test.ShouldEqual, want)
		}
	}
	wg.Wait()
}

func TestRunConsumesTopics(t *testing.T) {
	bus := transport.NewBus(4, logging.NewTestLogger(t))
	r := NewReconciler(newTestRegistry(t), nil, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, bus) }()

	deadline := time.Now().Add(5 * time.Second)
	for r.Kinematic() == nil || r.Status() == nil {
		if time.Now().After(deadline) {
			t.Fatal("reconciler never saw both topics")
		}
		test.That(t, bus.Publish(ctx, ros.JointStatesTopic, ros.JointState{Name: []string{"a"}, Position: []float64{0.5}}), test.ShouldBeNil)
		test.That(t, bus.Publish(ctx, ros.SchunkStatusTopic, ros.SchunkStatus{Joints: []ros.JointStatus{{JointName: "a"}}}), test.ShouldBeNil)
		time.Sleep(5 * time.Millisecond)
	}
	pos, ok := r.Position(0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pos, test.ShouldEqual, 0.5)

	test.That(t, bus.Close(), test.ShouldBeNil)
	test.That(t, <-done, test.ShouldBeNil)
}

func TestSummarize(t *testing.T) {
	logger := logging.NewTestLogger(t)
	start := time.Unix(1700000000, 0)
	msgs := []ros.BagMessage{
		{Topic: ros.JointStatesTopic, Time: start, Msg: ros.JointState{
			Name: []string{"c", "a", "finger"}, Position: []float64{0.5, -0.25, 0.01},
		}},
		{Topic: ros.SchunkStatusTopic, Time: start.Add(100 * time.Millisecond), Msg: ros.SchunkStatus{
			Joints: []ros.JointStatus{{JointName: "a", Error: true, ErrorCode: 0xD9}, {JointName: "ghost"}, {JointName: "b"}},
		}},
		{Topic: ros.JointStatesTopic, Time: start.Add(200 * time.Millisecond), Msg: ros.JointState{
			Name: []string{"a", "c"}, Position: []float64{0.75, 0.5},
		}},
		{Topic: ros.SchunkStatusTopic, Time: start.Add(2 * time.Second), Msg: ros.SchunkStatus{
			Joints: []ros.JointStatus{{JointName: "a", Referenced: true}, {JointName: "b"}, {JointName: "c"}},
		}},
	}

	s := Summarize(newTestRegistry(t), msgs, logger)
	test.That(t, s.Duration(), test.ShouldEqual, 2*time.Second)
	test.That(t, s.Messages, test.ShouldResemble, map[string]int{ros.JointStatesTopic: 2, ros.SchunkStatusTopic: 2})
	test.That(t, s.Anomalies, test.ShouldEqual, 1)

	a := s.Joints[0]
	test.That(t, a.Name, test.ShouldEqual, "a")
	test.That(t, a.Samples, test.ShouldEqual, 2)
	test.That(t, a.MinPosition, test.ShouldEqual, -0.25)
	test.That(t, a.MaxPosition, test.ShouldEqual, 0.75)
	test.That(t, a.StatusReports, test.ShouldEqual, 2)
	test.That(t, a.ErrorReports, test.ShouldEqual, 1)
	test.That(t, a.LastStatus.Referenced, test.ShouldBeTrue)

	b := s.Joints[1]
	test.That(t, b.Samples, test.ShouldEqual, 0)
	test.That(t, b.StatusReports, test.ShouldEqual, 2)

	c := s.Joints[2]
	test.That(t, c.Samples, test.ShouldEqual, 2)
	test.That(t, c.StatusReports, test.ShouldEqual, 1)
}

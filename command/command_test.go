package command

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
)

type fakePanel struct {
	positions  []float64
	velocities []float64
}

func (p *fakePanel) PositionInput(i int) float64 { return p.positions[i] }
func (p *fakePanel) VelocityInput(i int) float64 { return p.velocities[i] }

func newTestDispatcher(t *testing.T, clk clock.Clock) (*Dispatcher, *Outbox, *fakePanel) {
	t.Helper()
	reg, err := referenceframe.NewRegistry([]referenceframe.JointConfig{
		{Name: "shoulder", Min: -math.Pi / 2, Max: math.Pi / 2},
		{Name: "elbow", Min: 0.2, Max: 2.0, ZeroOffset: 1.1},
		{Name: "wrist", Min: -math.Pi, Max: math.Pi},
	})
	test.That(t, err, test.ShouldBeNil)
	logger := logging.NewTestLogger(t)
	outbox := NewOutbox(logger)
	panel := &fakePanel{positions: []float64{10, 20, 30}, velocities: []float64{5, -5, 0}}
	return NewDispatcher(reg, outbox, panel, clk, Options{}, logger), outbox, panel
}

func TestParseTarget(t *testing.T) {
	for _, tc := range []struct {
		token  string
		target Target
		err    error
	}{
		{"", AllModules(), nil},
		{"all", AllModules(), nil},
		{"0", Module(0), nil},
		{" 2 ", Module(2), nil},
		{"3", Target{}, ErrUnknownModule},
		{"-1", Target{}, ErrUnknownModule},
		{"two", Target{}, ErrUnknownModule},
	} {
		t.Run(tc.token, func(t *testing.T) {
			target, err := ParseTarget(tc.token, 3)
			if tc.err != nil {
				test.That(t, errors.Is(err, tc.err), test.ShouldBeTrue)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, target, test.ShouldResemble, tc.target)
		})
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldBeNil)

	v, err = ParseValue("-12.5")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *v, test.ShouldEqual, -12.5)

	for _, bad := range []string{"abc", "NaN", "+Inf"} {
		_, err = ParseValue(bad)
		test.That(t, errors.Is(err, ErrBadValue), test.ShouldBeTrue)
	}
}

func TestOutboxLastWriterWins(t *testing.T) {
	outbox := NewOutbox(logging.NewTestLogger(t))
	test.That(t, outbox.Drain(), test.ShouldBeEmpty)

	outbox.Stage(Command{Kind: KindPosition, Msg: ros.JointState{Name: []string{"a"}, Position: []float64{1}}})
	outbox.Stage(Command{Kind: KindPosition, Msg: ros.JointState{Name: []string{"a"}, Position: []float64{2}}})
	outbox.Stage(Command{Kind: KindEmergencyStop, Msg: ros.Empty{}})
	outbox.Stage(Command{Kind: KindAckAll, Msg: ros.Empty{}})
	test.That(t, outbox.Overwrites(), test.ShouldEqual, uint64(1))

	drained := outbox.Drain()
	test.That(t, len(drained), test.ShouldEqual, 3)
	test.That(t, drained[0].Kind, test.ShouldEqual, KindPosition)
	test.That(t, drained[0].Msg.(ros.JointState).Position, test.ShouldResemble, []float64{2})
	test.That(t, drained[0].Topic(), test.ShouldEqual, ros.MoveAllPositionTopic)
	test.That(t, drained[1].Kind, test.ShouldEqual, KindAckAll)
	test.That(t, drained[2].Kind, test.ShouldEqual, KindEmergencyStop)

	test.That(t, outbox.Drain(), test.ShouldBeEmpty)
	test.That(t, outbox.Dirty(KindPosition), test.ShouldBeFalse)
}

func TestOutboxWaitSent(t *testing.T) {
	outbox := NewOutbox(logging.NewTestLogger(t))
	test.That(t, outbox.WaitSent(context.Background(), KindAckJoint), test.ShouldBeNil)

	outbox.Stage(Command{Kind: KindAckJoint, Msg: ros.Int8{Data: 1}})
	go func() {
		time.Sleep(10 * time.Millisecond)
		for _, cmd := range outbox.Drain() {
			outbox.MarkSent(cmd.Kind, nil)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, outbox.WaitSent(ctx, KindAckJoint), test.ShouldBeNil)

	// drained but not yet published still counts as unsent
	outbox.Stage(Command{Kind: KindAckJoint, Msg: ros.Int8{Data: 3}})
	test.That(t, len(outbox.Drain()), test.ShouldEqual, 1)
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	test.That(t, outbox.WaitSent(short, KindAckJoint), test.ShouldEqual, context.DeadlineExceeded)

	linkDown := errors.New("link down")
	outbox.MarkSent(KindAckJoint, linkDown)
	test.That(t, outbox.WaitSent(ctx, KindAckJoint), test.ShouldEqual, linkDown)

	outbox.Stage(Command{Kind: KindAckJoint, Msg: ros.Int8{Data: 2}})
	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	test.That(t, outbox.WaitSent(cancelled, KindAckJoint), test.ShouldEqual, context.Canceled)
}

func TestMoveValidation(t *testing.T) {
	d, outbox, _ := newTestDispatcher(t, nil)

	t.Run("out of range leaves outbox untouched", func(t *testing.T) {
		v := 95.0
		err := d.Move(Module(0), &v)
		test.That(t, errors.Is(err, ErrOutOfRange), test.ShouldBeTrue)
		test.That(t, outbox.Dirty(KindPosition), test.ShouldBeFalse)
	})

	t.Run("unknown module", func(t *testing.T) {
		v := 0.0
		test.That(t, errors.Is(d.Move(Module(7), &v), ErrUnknownModule), test.ShouldBeTrue)
		test.That(t, outbox.Dirty(KindPosition), test.ShouldBeFalse)
	})

	t.Run("limit edge in degrees", func(t *testing.T) {
		v := 90.0
		test.That(t, d.Move(Module(0), &v), test.ShouldBeNil)
		cmd, ok := outbox.Pending(KindPosition)
		test.That(t, ok, test.ShouldBeTrue)
		state := cmd.Msg.(ros.JointState)
		test.That(t, state.Name, test.ShouldResemble, []string{"shoulder"})
		test.That(t, state.Position[0], test.ShouldAlmostEqual, math.Pi/2)
		outbox.Drain()
	})

	t.Run("radians", func(t *testing.T) {
		d.SetUnits(Radians)
		defer d.SetUnits(Degrees)
		v := 1.0
		test.That(t, d.Move(Module(1), &v), test.ShouldBeNil)
		cmd, _ := outbox.Pending(KindPosition)
		test.That(t, cmd.Msg.(ros.JointState).Position, test.ShouldResemble, []float64{1.0})
		v = 0.1
		test.That(t, errors.Is(d.Move(Module(1), &v), ErrOutOfRange), test.ShouldBeTrue)
		cmd, _ = outbox.Pending(KindPosition)
		test.That(t, cmd.Msg.(ros.JointState).Position, test.ShouldResemble, []float64{1.0})
		outbox.Drain()
	})

	t.Run("panel fallback", func(t *testing.T) {
		test.That(t, d.Move(Module(2), nil), test.ShouldBeNil)
		cmd, _ := outbox.Pending(KindPosition)
		test.That(t, cmd.Msg.(ros.JointState).Position[0], test.ShouldAlmostEqual, math.Pi/6)
		outbox.Drain()
	})

	t.Run("all uses the panel", func(t *testing.T) {
		test.That(t, d.Move(AllModules(), nil), test.ShouldBeNil)
		cmd, _ := outbox.Pending(KindPosition)
		state := cmd.Msg.(ros.JointState)
		test.That(t, state.Name, test.ShouldResemble, []string{"shoulder", "elbow", "wrist"})
		test.That(t, len(state.Position), test.ShouldEqual, 3)
		test.That(t, state.Position[1], test.ShouldAlmostEqual, 20*math.Pi/180)
		outbox.Drain()

		v := 1.0
		test.That(t, errors.Is(d.Move(AllModules(), &v), ErrUnsupported), test.ShouldBeTrue)
	})
}

func TestMoveAllRejectsBadPanel(t *testing.T) {
	d, outbox, panel := newTestDispatcher(t, nil)
	panel.positions[1] = 0 // below the elbow window
	test.That(t, errors.Is(d.Move(AllModules(), nil), ErrOutOfRange), test.ShouldBeTrue)
	test.That(t, outbox.Dirty(KindPosition), test.ShouldBeFalse)

	test.That(t, errors.Is(d.MoveAll([]float64{0, 0}), ErrOutOfRange), test.ShouldBeTrue)
	test.That(t, d.MoveAll([]float64{0, 1, 0}), test.ShouldBeNil)
	test.That(t, outbox.Dirty(KindPosition), test.ShouldBeTrue)
}

func TestVelocityEnvelope(t *testing.T) {
	d, outbox, _ := newTestDispatcher(t, nil)

	v := 91.0
	test.That(t, errors.Is(d.Velocity(Module(0), &v), ErrOutOfRange), test.ShouldBeTrue)
	v = -90.0
	test.That(t, d.Velocity(Module(1), &v), test.ShouldBeNil)
	cmd, ok := outbox.Pending(KindVelocity)
	test.That(t, ok, test.ShouldBeTrue)
	state := cmd.Msg.(ros.JointState)
	test.That(t, state.Name, test.ShouldResemble, []string{"elbow"})
	test.That(t, state.Velocity[0], test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, state.Position, test.ShouldBeEmpty)

	d.SetUnits(Radians)
	v = 2.0
	test.That(t, errors.Is(d.Velocity(Module(0), &v), ErrOutOfRange), test.ShouldBeTrue)
	d.SetUnits(Degrees)

	test.That(t, d.Velocity(AllModules(), nil), test.ShouldBeNil)
	cmd, _ = outbox.Pending(KindVelocity)
	test.That(t, len(cmd.Msg.(ros.JointState).Velocity), test.ShouldEqual, 3)

	d.StopVelocities()
	cmd, _ = outbox.Pending(KindVelocity)
	test.That(t, cmd.Msg.(ros.JointState).Velocity, test.ShouldResemble, []float64{0, 0, 0})
}

func TestAddressingCommands(t *testing.T) {
	d, outbox, _ := newTestDispatcher(t, nil)

	test.That(t, d.Ack(AllModules()), test.ShouldBeNil)
	test.That(t, outbox.Dirty(KindAckAll), test.ShouldBeTrue)
	test.That(t, outbox.Dirty(KindAckJoint), test.ShouldBeFalse)

	test.That(t, d.Ref(Module(2)), test.ShouldBeNil)
	cmd, ok := outbox.Pending(KindRefJoint)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Msg, test.ShouldResemble, ros.Int8{Data: 2})
	test.That(t, errors.Is(d.Ref(Module(3)), ErrUnknownModule), test.ShouldBeTrue)

	test.That(t, errors.Is(d.MaxCurrent(Module(1)), ErrUnsupported), test.ShouldBeTrue)
	test.That(t, errors.Is(d.MaxCurrent(Module(9)), ErrUnknownModule), test.ShouldBeTrue)
	test.That(t, outbox.Dirty(KindMaxCurrentAll), test.ShouldBeFalse)
	test.That(t, d.MaxCurrent(AllModules()), test.ShouldBeNil)
	test.That(t, outbox.Dirty(KindMaxCurrentAll), test.ShouldBeTrue)
}

func TestEmergencyStopBlocksMovement(t *testing.T) {
	d, outbox, _ := newTestDispatcher(t, nil)
	d.EngageStop()
	test.That(t, d.Stopped(), test.ShouldBeTrue)
	test.That(t, outbox.Dirty(KindEmergencyStop), test.ShouldBeTrue)

	v := 1.0
	test.That(t, d.Move(Module(0), &v), test.ShouldEqual, ErrEmergencyStopped)
	test.That(t, d.Velocity(Module(0), &v), test.ShouldEqual, ErrEmergencyStopped)
	test.That(t, d.MoveAll([]float64{0, 1, 0}), test.ShouldEqual, ErrEmergencyStopped)
	test.That(t, outbox.Dirty(KindPosition), test.ShouldBeFalse)
	test.That(t, d.Ack(Module(0)), test.ShouldBeNil)
}

func TestClearStopAcknowledgesEachJoint(t *testing.T) {
	d, outbox, _ := newTestDispatcher(t, clock.NewMock())
	d.EngageStop()
	outbox.Drain()

	sent := make(chan []Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		var all []Command
		for len(all) < 3 && ctx.Err() == nil {
			drained := outbox.Drain()
			for _, cmd := range drained {
				outbox.MarkSent(cmd.Kind, nil)
			}
			all = append(all, drained...)
			time.Sleep(time.Millisecond)
		}
		sent <- all
	}()

	test.That(t, d.ClearStop(context.Background()), test.ShouldBeNil)
	test.That(t, d.Stopped(), test.ShouldBeFalse)
	all := <-sent
	test.That(t, len(all), test.ShouldEqual, 3)
	for i, cmd := range all {
		test.That(t, cmd.Kind, test.ShouldEqual, KindAckJoint)
		test.That(t, cmd.Msg, test.ShouldResemble, ros.Int8{Data: int8(i)})
	}
}

func TestClearStopTimesOut(t *testing.T) {
	mockClock := clock.NewMock()
	d, _, _ := newTestDispatcher(t, mockClock)
	d.EngageStop()

	done := make(chan error, 1)
	go func() { done <- d.ClearStop(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-done:
			test.That(t, errors.Is(err, ErrAckTimeout), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, "shoulder")
			test.That(t, d.Stopped(), test.ShouldBeTrue)
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("ClearStop never gave up")
		}
		mockClock.Add(500 * time.Millisecond)
	}
}

package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
)

type sentMsg struct {
	topic string
	msg   ros.Message
}

type recorder struct {
	mu   sync.Mutex
	msgs []sentMsg
	fail bool
}

func (r *recorder) Publish(_ context.Context, topic string, msg ros.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("link down")
	}
	r.msgs = append(r.msgs, sentMsg{topic, msg})
	return nil
}

func (r *recorder) sent() []sentMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMsg(nil), r.msgs...)
}

func TestNewLoopFrequency(t *testing.T) {
	logger := logging.NewTestLogger(t)
	outbox := command.NewOutbox(logger)

	l, err := NewLoop(logger, Config{}, outbox, &recorder{}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Frequency(), test.ShouldEqual, DefaultFrequency)
	test.That(t, l.Period(), test.ShouldEqual, 100*time.Millisecond)

	_, err = NewLoop(logger, Config{Frequency: 201}, outbox, &recorder{}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoop(logger, Config{Frequency: -1}, outbox, &recorder{}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTickFlushesOnce(t *testing.T) {
	logger := logging.NewTestLogger(t)
	outbox := command.NewOutbox(logger)
	pub := &recorder{}
	mockClock := clock.NewMock()
	l, err := NewLoop(logger, Config{}, outbox, pub, mockClock)
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()

	outbox.Stage(command.Command{Kind: command.KindAckAll, Msg: ros.Empty{}})
	test.That(t, outbox.Dirty(command.KindAckAll), test.ShouldBeTrue)
	test.That(t, l.Tick(ctx), test.ShouldBeNil)
	test.That(t, outbox.Dirty(command.KindAckAll), test.ShouldBeFalse)
	test.That(t, l.Tick(ctx), test.ShouldBeNil)
	test.That(t, pub.sent(), test.ShouldResemble, []sentMsg{{ros.AckAllTopic, ros.Empty{}}})

	// two position commands before one tick: only the later one goes out
	outbox.Stage(command.Command{Kind: command.KindPosition, Msg: ros.JointState{Name: []string{"a"}, Position: []float64{1}}})
	outbox.Stage(command.Command{Kind: command.KindPosition, Msg: ros.JointState{Name: []string{"a"}, Position: []float64{2}}})
	mockClock.Add(time.Second)
	test.That(t, l.Tick(ctx), test.ShouldBeNil)
	sent := pub.sent()
	test.That(t, len(sent), test.ShouldEqual, 2)
	test.That(t, sent[1].topic, test.ShouldEqual, ros.MoveAllPositionTopic)
	state := sent[1].msg.(ros.JointState)
	test.That(t, state.Position, test.ShouldResemble, []float64{2})
	test.That(t, state.Header.Stamp, test.ShouldResemble, ros.Time{Secs: 1})
	test.That(t, state.Header.Seq, test.ShouldEqual, uint32(1))
	test.That(t, l.Ticks(), test.ShouldEqual, uint64(3))
	test.That(t, l.Sent(), test.ShouldEqual, uint64(2))
}

func TestTickDropsFailedPublish(t *testing.T) {
	logger := logging.NewTestLogger(t)
	outbox := command.NewOutbox(logger)
	pub := &recorder{fail: true}
	l, err := NewLoop(logger, Config{}, outbox, pub, nil)
	test.That(t, err, test.ShouldBeNil)

	outbox.Stage(command.Command{Kind: command.KindEmergencyStop, Msg: ros.Empty{}})
	test.That(t, l.Tick(context.Background()), test.ShouldNotBeNil)
	test.That(t, outbox.Dirty(command.KindEmergencyStop), test.ShouldBeFalse)
	err = outbox.WaitSent(context.Background(), command.KindEmergencyStop)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "link down")
}

func TestClearStopWaitsForPublishedAcks(t *testing.T) {
	for _, tc := range []struct {
		name string
		fail bool
	}{
		{"publish fails", true},
		{"publish succeeds", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logger := logging.NewTestLogger(t)
			reg, err := referenceframe.NewRegistry([]referenceframe.JointConfig{
				{Name: "shoulder", Min: -1, Max: 1},
				{Name: "elbow", Min: -1, Max: 1},
			})
			test.That(t, err, test.ShouldBeNil)

			mockClock := clock.NewMock()
			outbox := command.NewOutbox(logger)
			pub := &recorder{fail: tc.fail}
			d := command.NewDispatcher(reg, outbox, nil, mockClock, command.Options{AckTimeout: time.Hour}, logger)
			l, err := NewLoop(logger, Config{}, outbox, pub, mockClock)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, l.Start(), test.ShouldBeNil)
			defer l.Stop()

			d.EngageStop()
			done := make(chan error, 1)
			go func() { done <- d.ClearStop(context.Background()) }()

			deadline := time.Now().Add(5 * time.Second)
			for {
				select {
				case err := <-done:
					if tc.fail {
						test.That(t, err, test.ShouldNotBeNil)
						test.That(t, err.Error(), test.ShouldContainSubstring, "link down")
						test.That(t, err.Error(), test.ShouldContainSubstring, "shoulder")
						test.That(t, d.Stopped(), test.ShouldBeTrue)
						test.That(t, pub.sent(), test.ShouldBeEmpty)
						return
					}
					test.That(t, err, test.ShouldBeNil)
					test.That(t, d.Stopped(), test.ShouldBeFalse)
					var acks []ros.Message
					for _, m := range pub.sent() {
						if m.topic == ros.AckTopic {
							acks = append(acks, m.msg)
						}
					}
					test.That(t, acks, test.ShouldResemble, []ros.Message{ros.Int8{Data: 0}, ros.Int8{Data: 1}})
					return
				default:
				}
				if time.Now().After(deadline) {
					t.Fatal("ClearStop never returned")
				}
				mockClock.Add(l.Period())
				time.Sleep(time.Millisecond)
			}
		})
	}
}

func TestLoopRunsOnTicker(t *testing.T) {
	logger := logging.NewTestLogger(t)
	outbox := command.NewOutbox(logger)
	bus := transport.NewBus(4, logger)
	defer bus.Close()
	acks, cancel, err := bus.Subscribe(ros.AckTopic)
	test.That(t, err, test.ShouldBeNil)
	defer cancel()

	mockClock := clock.NewMock()
	l, err := NewLoop(logger, Config{Frequency: 10}, outbox, bus, mockClock)
	test.That(t, err, test.ShouldBeNil)

	extraRan := make(chan struct{})
	test.That(t, l.Start(func(ctx context.Context) {
		close(extraRan)
		<-ctx.Done()
	}), test.ShouldBeNil)
	test.That(t, l.Start(), test.ShouldNotBeNil)
	<-extraRan

	outbox.Stage(command.Command{Kind: command.KindAckJoint, Msg: ros.Int8{Data: 4}})
	deadline := time.Now().Add(5 * time.Second)
	var got ros.Message
	for got == nil {
		if time.Now().After(deadline) {
			t.Fatal("loop never published the pending ack")
		}
		mockClock.Add(100 * time.Millisecond)
		select {
		case got = <-acks:
		default:
		}
	}
	test.That(t, got, test.ShouldResemble, ros.Int8{Data: 4})

	l.Stop()
	l.Stop()
	test.That(t, l.Ticks(), test.ShouldBeGreaterThanOrEqualTo, uint64(1))
}

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(4, logging.NewTestLogger(t))
	defer bus.Close()
	ctx := context.Background()

	first, cancelFirst, err := bus.Subscribe(ros.AckTopic)
	test.That(t, err, test.ShouldBeNil)
	second, cancelSecond, err := bus.Subscribe(ros.AckTopic)
	test.That(t, err, test.ShouldBeNil)
	defer cancelSecond()
	other, cancelOther, err := bus.Subscribe(ros.RefTopic)
	test.That(t, err, test.ShouldBeNil)
	defer cancelOther()

	test.That(t, bus.Publish(ctx, ros.AckTopic, ros.Int8{Data: 2}), test.ShouldBeNil)
	test.That(t, <-first, test.ShouldResemble, ros.Int8{Data: 2})
	test.That(t, <-second, test.ShouldResemble, ros.Int8{Data: 2})
	select {
	case msg := <-other:
		t.Fatalf("unexpected message on other topic: %v", msg)
	default:
	}

	cancelFirst()
	cancelFirst()
	_, open := <-first
	test.That(t, open, test.ShouldBeFalse)
	test.That(t, bus.Publish(ctx, ros.AckTopic, ros.Int8{Data: 3}), test.ShouldBeNil)
	test.That(t, <-second, test.ShouldResemble, ros.Int8{Data: 3})
}

func TestBusDropsOldest(t *testing.T) {
	bus := NewBus(2, logging.NewTestLogger(t))
	defer bus.Close()
	ch, cancel, err := bus.Subscribe(ros.AckTopic)
	test.That(t, err, test.ShouldBeNil)
	defer cancel()

	for i := int8(0); i < 5; i++ {
		test.That(t, bus.Publish(context.Background(), ros.AckTopic, ros.Int8{Data: i}), test.ShouldBeNil)
	}
	test.That(t, <-ch, test.ShouldResemble, ros.Int8{Data: 3})
	test.That(t, <-ch, test.ShouldResemble, ros.Int8{Data: 4})
}

func TestBusClose(t *testing.T) {
	bus := NewBus(0, logging.NewTestLogger(t))
	ch, cancel, err := bus.Subscribe(ros.TFTopic)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, bus.Close(), test.ShouldBeNil)
	test.That(t, bus.Close(), test.ShouldBeNil)
	_, open := <-ch
	test.That(t, open, test.ShouldBeFalse)
	cancel()

	test.That(t, bus.Publish(context.Background(), ros.TFTopic, ros.TFMessage{}), test.ShouldEqual, ErrClosed)
	_, _, err = bus.Subscribe(ros.TFTopic)
	test.That(t, err, test.ShouldEqual, ErrClosed)

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()
	test.That(t, NewBus(1, logging.NewTestLogger(t)).Publish(ctx, ros.TFTopic, ros.TFMessage{}), test.ShouldNotBeNil)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ ros.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

func TestReplayTiming(t *testing.T) {
	mockClock := clock.NewMock()
	pub := &recordingPublisher{}
	start := time.Unix(100, 0)
	msgs := []ros.BagMessage{
		{Topic: ros.JointStatesTopic, Time: start, Msg: ros.JointState{}},
		{Topic: ros.SchunkStatusTopic, Time: start.Add(time.Second), Msg: ros.SchunkStatus{}},
		{Topic: ros.JointStatesTopic, Time: start.Add(2 * time.Second), Msg: ros.JointState{}},
	}

	done := make(chan error, 1)
	go func() { done <- Replay(context.Background(), mockClock, pub, msgs, 2) }()

	// At double speed the messages are half a second apart.
	waitFor := func(n int) {
		deadline := time.Now().Add(5 * time.Second)
		for pub.count() < n {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d published messages, got %d", n, pub.count())
			}
			mockClock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
	waitFor(3)
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, pub.topics, test.ShouldResemble, []string{ros.JointStatesTopic, ros.SchunkStatusTopic, ros.JointStatesTopic})
	test.That(t, mockClock.Now().Sub(time.Unix(0, 0)), test.ShouldBeGreaterThanOrEqualTo, time.Second)
}

func TestReplayBackToBackAndCancel(t *testing.T) {
	pub := &recordingPublisher{}
	msgs := []ros.BagMessage{
		{Topic: ros.JointStatesTopic, Time: time.Unix(0, 0), Msg: ros.JointState{}},
		{Topic: ros.JointStatesTopic, Time: time.Unix(60, 0), Msg: ros.JointState{}},
	}
	test.That(t, Replay(context.Background(), clock.NewMock(), pub, msgs, 0), test.ShouldBeNil)
	test.That(t, pub.count(), test.ShouldEqual, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Replay(ctx, clock.NewMock(), &recordingPublisher{}, msgs, 1)
	test.That(t, err, test.ShouldEqual, context.Canceled)
	test.That(t, Replay(ctx, clock.NewMock(), pub, nil, 1), test.ShouldBeNil)
}

package transport

import (
	"context"
	"sync"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
)

// DefaultBufferSize is the per subscriber queue depth.
const DefaultBufferSize = 16

type subscription struct {
	mu sync.Mutex
	ch chan ros.Message
}

// deliver never blocks: when the queue is full the oldest message is discarded so subscribers
// always catch up to the latest telemetry. It returns how many messages were discarded.
func (s *subscription) deliver(msg ros.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for {
		select {
		case s.ch <- msg:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

// Bus is an in-process fan out Conn. Publishing never blocks.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscription]struct{}
	bufferSize int
	closed     bool
	logger     logging.Logger
}

// NewBus returns an open bus. A bufferSize below 1 uses DefaultBufferSize.
func NewBus(bufferSize int, logger logging.Logger) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:       map[string]map[*subscription]struct{}{},
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Publish fans msg out to every current subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, msg ros.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[topic] {
		if dropped := sub.deliver(msg); dropped > 0 {
			b.logger.Debugw("slow subscriber, dropped oldest message", "topic", topic, "dropped", dropped)
		}
	}
	return nil
}

// Subscribe registers a new subscriber on topic.
func (b *Bus) Subscribe(topic string) (<-chan ros.Message, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}
	sub := &subscription{ch: make(chan ros.Message, b.bufferSize)}
	if b.subs[topic] == nil {
		b.subs[topic] = map[*subscription]struct{}{}
	}
	b.subs[topic][sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][sub]; ok {
				delete(b.subs[topic], sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel, nil
}

// Close closes every subscriber channel. Further calls fail with ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
	return nil
}

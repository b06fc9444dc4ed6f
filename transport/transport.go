// Package transport is the narrow publish/subscribe surface the console needs from its middleware.
// Bus is the in-process implementation used by the simulator and tests; the rosbridge
// subpackage talks to a real ROS graph.
package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/ros"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport closed")

// Publisher sends one message on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg ros.Message) error
}

// Subscriber delivers messages on a topic until the returned cancel func is called or the
// connection closes, at which point the channel is closed.
type Subscriber interface {
	Subscribe(topic string) (<-chan ros.Message, func(), error)
}

// Conn is a full duplex middleware connection.
type Conn interface {
	Publisher
	Subscriber
	Close() error
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ctx context.Context, topic string, msg ros.Message) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, topic string, msg ros.Message) error {
	return f(ctx, topic, msg)
}

// Package rosbridge connects the console to a ROS graph through a rosbridge v2 websocket server.
// There is no automatic reconnect: when the socket drops every subscription channel is closed and
// further calls fail with transport.ErrClosed.
package rosbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
	"github.com/uu-controllers/schunkgui/utils"
)

const (
	defaultWriteTimeout = 5 * time.Second
	subscriberBuffer    = transport.DefaultBufferSize
)

// operation is the rosbridge v2 envelope. Only the fields of the ops used here are present.
type operation struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

type topicSubscription struct {
	id    string
	chans map[chan ros.Message]struct{}
}

// Client is a transport.Conn over rosbridge.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu         sync.Mutex
	advertised map[string]string
	subs       map[string]*topicSubscription
	closed     bool

	workers utils.StoppableWorkers
	logger  logging.Logger
}

// Dial opens a websocket to a rosbridge server such as ws://localhost:9090.
func Dial(ctx context.Context, url string, logger logging.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to rosbridge at %s", url)
	}
	return NewClient(ws, logger), nil
}

// NewClient wraps an established websocket and starts the read loop.
func NewClient(ws *websocket.Conn, logger logging.Logger) *Client {
	c := &Client{
		ws:         ws,
		advertised: map[string]string{},
		subs:       map[string]*topicSubscription{},
		logger:     logger,
	}
	c.workers = utils.NewStoppableWorkers(c.readLoop)
	return c
}

func (c *Client) send(ctx context.Context, op operation) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(op)
}

// Publish advertises topic on first use, then publishes msg on it.
func (c *Client) Publish(ctx context.Context, topic string, msg ros.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", msg.MessageType())
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	_, advertised := c.advertised[topic]
	var advertiseID string
	if !advertised {
		advertiseID = "advertise:" + topic + ":" + uuid.NewString()
		c.advertised[topic] = advertiseID
	}
	c.mu.Unlock()

	if !advertised {
		if err := c.send(ctx, operation{Op: "advertise", ID: advertiseID, Topic: topic, Type: msg.MessageType()}); err != nil {
			c.mu.Lock()
			delete(c.advertised, topic)
			c.mu.Unlock()
			return errors.Wrapf(err, "advertising %s", topic)
		}
	}
	if err := c.send(ctx, operation{Op: "publish", Topic: topic, Msg: body}); err != nil {
		return errors.Wrapf(err, "publishing on %s", topic)
	}
	return nil
}

// Subscribe asks the server for topic on the first local subscriber and shares the stream between
// later ones. The last cancel unsubscribes upstream.
func (c *Client) Subscribe(topic string) (<-chan ros.Message, func(), error) {
	msgType, err := ros.TypeOf(topic)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, transport.ErrClosed
	}
	ch := make(chan ros.Message, subscriberBuffer)
	sub, exists := c.subs[topic]
	if !exists {
		sub = &topicSubscription{id: "subscribe:" + topic + ":" + uuid.NewString(), chans: map[chan ros.Message]struct{}{}}
		c.subs[topic] = sub
	}
	sub.chans[ch] = struct{}{}
	c.mu.Unlock()

	if !exists {
		if err := c.send(context.Background(), operation{Op: "subscribe", ID: sub.id, Topic: topic, Type: msgType}); err != nil {
			c.removeSubscriber(topic, ch)
			return nil, nil, errors.Wrapf(err, "subscribing to %s", topic)
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if id, last := c.removeSubscriber(topic, ch); last {
				if err := c.send(context.Background(), operation{Op: "unsubscribe", ID: id, Topic: topic}); err != nil {
					c.logger.Debugw("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		})
	}
	return ch, cancel, nil
}

// removeSubscriber closes ch and reports whether it was the topic's last local subscriber.
func (c *Client) removeSubscriber(topic string, ch chan ros.Message) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[topic]
	if !ok {
		return "", false
	}
	if _, ok := sub.chans[ch]; !ok {
		return "", false
	}
	delete(sub.chans, ch)
	close(ch)
	if len(sub.chans) > 0 {
		return "", false
	}
	delete(c.subs, topic)
	return sub.id, !c.closed
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.shutdown()
	for ctx.Err() == nil {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warnw("rosbridge connection lost", "error", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var op operation
	if err := json.Unmarshal(data, &op); err != nil {
		c.logger.Warnw("unparsable rosbridge frame", "error", err)
		return
	}
	switch op.Op {
	case "publish":
		msg, err := ros.DecodeJSON(op.Topic, op.Msg)
		if err != nil {
			c.logger.Warnw("dropping message", "topic", op.Topic, "error", err)
			return
		}
		c.deliver(op.Topic, msg)
	case "status":
		c.logger.Infow("rosbridge status", "id", op.ID, "msg", string(op.Msg))
	default:
		c.logger.Debugw("ignoring rosbridge op", "op", op.Op)
	}
}

// deliver drops the oldest queued message for a full subscriber, like transport.Bus.
func (c *Client) deliver(topic string, msg ros.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[topic]
	if !ok {
		return
	}
	for ch := range sub.chans {
		for sent := false; !sent; {
			select {
			case ch <- msg:
				sent = true
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for topic, sub := range c.subs {
		for ch := range sub.chans {
			close(ch)
		}
		delete(c.subs, topic)
	}
}

// Close sends a close frame, closes the socket and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	closeErr := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	err := c.ws.Close()
	c.workers.Stop()
	c.shutdown()
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		c.logger.Debugw("close frame not sent", "error", closeErr)
	}
	return err
}

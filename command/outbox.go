package command

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
)

// Kind identifies one outbox slot. Drain visits the kinds in declaration order.
type Kind int

// The command kinds, one slot each.
const (
	KindPosition Kind = iota
	KindVelocity
	KindAckJoint
	KindRefJoint
	KindAckAll
	KindRefAll
	KindMaxCurrentAll
	KindEmergencyStop
	numKinds
)

var kindNames = [numKinds]string{
	"position", "velocity", "ack", "ref", "ack_all", "ref_all", "set_current_max_all", "emergency_stop",
}

var kindTopics = [numKinds]string{
	ros.MoveAllPositionTopic,
	ros.MoveAllVelocityTopic,
	ros.AckTopic,
	ros.RefTopic,
	ros.AckAllTopic,
	ros.RefAllTopic,
	ros.SetCurrentMaxAllTopic,
	ros.EmergencyStopTopic,
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Topic is where commands of this kind are published.
func (k Kind) Topic() string {
	if k < 0 || k >= numKinds {
		return ""
	}
	return kindTopics[k]
}

// Command is a staged message for one slot.
type Command struct {
	Kind Kind
	Msg  ros.Message
}

// Topic is the topic the command is published on.
func (c Command) Topic() string {
	return c.Kind.Topic()
}

// Outbox holds at most one pending command per kind. Staging over a pending command replaces it
// and the earlier one is never sent. Drain takes every pending command at once, so a command is
// either delivered whole by exactly one drain or overwritten. Whoever drains reports each publish
// back through MarkSent; until then the command counts as in flight.
type Outbox struct {
	mu       sync.Mutex
	slots    [numKinds]*Command
	inFlight [numKinds]int
	results  [numKinds]error
	changed  chan struct{}

	overwrites atomic.Uint64
	logger     logging.Logger
}

// NewOutbox returns an empty outbox.
func NewOutbox(logger logging.Logger) *Outbox {
	return &Outbox{changed: make(chan struct{}), logger: logger}
}

// Stage sets the slot for cmd.Kind.
func (o *Outbox) Stage(cmd Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev := o.slots[cmd.Kind]; prev != nil {
		o.overwrites.Inc()
		o.logger.Debugw("pending command overwritten before it was sent", "kind", cmd.Kind)
	}
	o.slots[cmd.Kind] = &cmd
	o.results[cmd.Kind] = nil
}

// Pending returns the staged command of a kind without clearing it.
func (o *Outbox) Pending(kind Kind) (Command, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cmd := o.slots[kind]; cmd != nil {
		return *cmd, true
	}
	return Command{}, false
}

// Dirty reports whether a command of this kind is waiting to be sent.
func (o *Outbox) Dirty(kind Kind) bool {
	_, ok := o.Pending(kind)
	return ok
}

// Drain removes and returns every pending command in kind order. Each returned command stays in
// flight until MarkSent is called for its kind.
func (o *Outbox) Drain() []Command {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Command
	for kind, cmd := range o.slots {
		if cmd == nil {
			continue
		}
		out = append(out, *cmd)
		o.slots[kind] = nil
		o.inFlight[kind]++
	}
	return out
}

// MarkSent records the outcome of publishing a drained command of kind and wakes WaitSent callers.
// A nil err means the command reached the transport.
func (o *Outbox) MarkSent(kind Kind, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[kind] > 0 {
		o.inFlight[kind]--
	}
	o.results[kind] = err
	close(o.changed)
	o.changed = make(chan struct{})
}

// WaitSent blocks until no command of kind is pending or in flight, then returns the publish error
// of the last one sent, if any. It returns ctx's error if ctx is done first.
func (o *Outbox) WaitSent(ctx context.Context, kind Kind) error {
	for {
		o.mu.Lock()
		busy := o.slots[kind] != nil || o.inFlight[kind] > 0
		result := o.results[kind]
		changed := o.changed
		o.mu.Unlock()
		if !busy {
			return result
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Overwrites is how many staged commands were replaced before being sent.
func (o *Outbox) Overwrites() uint64 {
	return o.overwrites.Load()
}

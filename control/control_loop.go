// Package control runs the fixed rate command loop that flushes the outbox to the transport.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
	"github.com/uu-controllers/schunkgui/utils"
)

// DefaultFrequency is the loop rate in Hz when none is configured.
const DefaultFrequency = 10.0

// Config holds the loop config.
type Config struct {
	Frequency float64 `json:"frequency"`
}

// Loop publishes every pending outbox command once per tick.
type Loop struct {
	cfg    Config
	dt     time.Duration
	outbox *command.Outbox
	pub    transport.Publisher
	clk    clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	workers utils.StoppableWorkers
	running bool

	ticks atomic.Uint64
	sent  atomic.Uint64
	seq   atomic.Uint32
}

// NewLoop constructs a loop. A zero frequency uses DefaultFrequency and a nil clk the wall clock.
func NewLoop(logger logging.Logger, cfg Config, outbox *command.Outbox, pub transport.Publisher, clk clock.Clock) (*Loop, error) {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Frequency < 0 || cfg.Frequency > 200 {
		return nil, errors.New("loop frequency shouldn't be 0 or above 200Hz")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		cfg:    cfg,
		dt:     time.Duration(float64(time.Second) * (1.0 / cfg.Frequency)),
		outbox: outbox,
		pub:    pub,
		clk:    clk,
		logger: logger,
	}, nil
}

// Frequency returns the loop's frequency.
func (l *Loop) Frequency() float64 {
	return l.cfg.Frequency
}

// Period is the time between ticks.
func (l *Loop) Period() time.Duration {
	return l.dt
}

// Start starts the ticker and any extra workers, such as the telemetry reader, which then share the
// loop's lifetime.
func (l *Loop) Start(extra ...func(context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("loop already running")
	}
	l.logger.Infof("Running loop on %1.4f Hz (%v)", l.cfg.Frequency, l.dt)
	ticker := l.clk.Ticker(l.dt)
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := l.Tick(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warnw("failed to publish command", "error", err)
			}
		}
	})
	l.workers.AddWorkers(extra...)
	l.running = true
	return nil
}

// Stop stops the loop and waits for its workers. Commands still pending stay in the outbox.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.logger.Debug("closing loop")
	l.workers.Stop()
	l.running = false
}

// Tick drains the outbox and publishes each command once, in kind order, reporting every outcome
// back to the outbox. A command that fails to publish is dropped, never retried; the errors are
// returned together.
func (l *Loop) Tick(ctx context.Context) error {
	l.ticks.Inc()
	var errs error
	for _, cmd := range l.outbox.Drain() {
		msg := cmd.Msg
		if state, ok := msg.(ros.JointState); ok {
			state.Header.Seq = l.seq.Inc()
			state.Header.Stamp = ros.NewTime(l.clk.Now())
			msg = state
		}
		if err := l.pub.Publish(ctx, cmd.Topic(), msg); err != nil {
			err = errors.Wrapf(err, "publishing %s", cmd.Kind)
			l.outbox.MarkSent(cmd.Kind, err)
			errs = multierr.Append(errs, err)
			continue
		}
		l.outbox.MarkSent(cmd.Kind, nil)
		l.sent.Inc()
		l.logger.Debugw("sent", "topic", cmd.Topic())
	}
	return errs
}

// Ticks is how many ticks have run.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Sent is how many commands have been published.
func (l *Loop) Sent() uint64 {
	return l.sent.Load()
}

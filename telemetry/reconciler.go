// Package telemetry reconciles the joint state and device status streams against the stable joint
// indices of a referenceframe.Registry.
//
// Every inbound message produces a brand new frame that is swapped in with a single atomic store,
// so a reader holding a frame always sees one complete message and the map built for it.
package telemetry

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
)

// ErrUnknownStatusJoint is reported when a device status entry names a joint the description does
// not know. It never stops the rest of the message from being reconciled.
var ErrUnknownStatusJoint = errors.New("status reported for unknown joint")

// Reconciler holds the latest kinematic and status frames.
type Reconciler struct {
	registry  *referenceframe.Registry
	clk       clock.Clock
	logger    logging.Logger
	kinematic atomic.Pointer[KinematicFrame]
	status    atomic.Pointer[StatusFrame]
}

// NewReconciler returns a reconciler with no data yet. A nil clk uses the wall clock.
func NewReconciler(registry *referenceframe.Registry, clk clock.Clock, logger logging.Logger) *Reconciler {
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{registry: registry, clk: clk, logger: logger}
}

// UpdateJointState rebuilds the kinematic map from msg. Names the registry does not know are
// mimic or dependent joints and are skipped without comment.
func (r *Reconciler) UpdateJointState(msg ros.JointState) {
	index := make(map[int]int, len(msg.Name))
	for raw, name := range msg.Name {
		if stable, ok := r.registry.IndexOf(name); ok {
			index[stable] = raw
		}
	}
	r.kinematic.Store(&KinematicFrame{Msg: msg, Received: r.clk.Now(), index: index})
}

// UpdateStatus rebuilds the status map from msg. Every unknown joint is logged once and returned as
// an ErrUnknownStatusJoint; the known entries are reconciled regardless.
func (r *Reconciler) UpdateStatus(msg ros.SchunkStatus) error {
	var errs error
	index := make(map[int]int, len(msg.Joints))
	for raw, joint := range msg.Joints {
		stable, ok := r.registry.IndexOf(joint.JointName)
		if !ok {
			r.logger.Warnw("status message contains a joint missing from the robot description", "joint", joint.JointName)
			errs = multierr.Append(errs, errors.Wrapf(ErrUnknownStatusJoint, "%q", joint.JointName))
			continue
		}
		index[stable] = raw
	}
	r.status.Store(&StatusFrame{Msg: msg, Received: r.clk.Now(), index: index})
	return errs
}

// Kinematic returns the latest kinematic frame, or nil before the first message.
func (r *Reconciler) Kinematic() *KinematicFrame {
	return r.kinematic.Load()
}

// Status returns the latest status frame, or nil before the first message.
func (r *Reconciler) Status() *StatusFrame {
	return r.status.Load()
}

// LookupKinematic returns the message index of a joint in the latest joint state.
func (r *Reconciler) LookupKinematic(stableIndex int) (int, bool) {
	return r.Kinematic().Lookup(stableIndex)
}

// LookupStatus returns the message index of a joint in the latest device status.
func (r *Reconciler) LookupStatus(stableIndex int) (int, bool) {
	return r.Status().Lookup(stableIndex)
}

// Position is the latest reported position of a joint.
func (r *Reconciler) Position(stableIndex int) (float64, bool) {
	return r.Kinematic().Position(stableIndex)
}

// JointStatus is the latest device status of a joint.
func (r *Reconciler) JointStatus(stableIndex int) (ros.JointStatus, bool) {
	return r.Status().Joint(stableIndex)
}

// MissingStatus lists the controllable joints absent from the latest device status. Every joint is
// expected to report, so a non-empty result is an anomaly for the caller to surface.
func (r *Reconciler) MissingStatus() []string {
	frame := r.Status()
	var missing []string
	for i, name := range r.registry.Names() {
		if _, ok := frame.Lookup(i); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Run feeds the reconciler from the joint state and device status topics until ctx is done or the
// subscriptions close.
func (r *Reconciler) Run(ctx context.Context, sub transport.Subscriber) error {
	states, cancelStates, err := sub.Subscribe(ros.JointStatesTopic)
	if err != nil {
		return err
	}
	defer cancelStates()
	statuses, cancelStatuses, err := sub.Subscribe(ros.SchunkStatusTopic)
	if err != nil {
		return err
	}
	defer cancelStatuses()

	for states != nil || statuses != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if state, isState := msg.(ros.JointState); isState {
				r.UpdateJointState(state)
			}
		case msg, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			if status, isStatus := msg.(ros.SchunkStatus); isStatus {
				// unknown joints were logged by UpdateStatus
				_ = r.UpdateStatus(status)
			}
		}
	}
	return nil
}

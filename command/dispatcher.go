// Package command validates operator commands against the joint registry and stages the resulting
// messages in an Outbox for the command loop to publish.
//
// Validation always happens before anything is staged, so a rejected command leaves the outbox
// exactly as it was.
package command

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/utils"
)

const (
	// DefaultVelocityLimitDeg is the symmetric velocity envelope in degrees per second.
	DefaultVelocityLimitDeg = 90.0
	// DefaultAckTimeout bounds the wait for each joint acknowledge while clearing an emergency stop.
	DefaultAckTimeout = 2 * time.Second

	limitEpsilon = 1e-9
)

// Units is the process wide unit toggle for position and velocity input.
type Units int32

// The input units.
const (
	Degrees Units = iota
	Radians
)

func (u Units) String() string {
	if u == Radians {
		return "rad"
	}
	return "deg"
}

// ParseUnits accepts deg/degrees and rad/radians.
func ParseUnits(s string) (Units, error) {
	switch s {
	case "", "deg", "degrees":
		return Degrees, nil
	case "rad", "radians":
		return Radians, nil
	}
	return Degrees, errors.Errorf("unknown units %q", s)
}

// ToRadians converts a value in these units.
func (u Units) ToRadians(v float64) float64 {
	if u == Radians {
		return v
	}
	return utils.DegToRad(v)
}

// FromRadians converts a radian value into these units.
func (u Units) FromRadians(v float64) float64 {
	if u == Radians {
		return v
	}
	return utils.RadToDeg(v)
}

// InputPanel supplies the per joint input values used when a command gives no explicit value.
// Values are in the dispatcher's current units.
type InputPanel interface {
	PositionInput(index int) float64
	VelocityInput(index int) float64
}

// Options tune a Dispatcher. Zero values take the defaults.
type Options struct {
	Units            Units
	VelocityLimitDeg float64
	AckTimeout       time.Duration
}

// Dispatcher is the single entry point for operator commands.
type Dispatcher struct {
	registry *referenceframe.Registry
	outbox   *Outbox
	panel    InputPanel
	clk      clock.Clock
	logger   logging.Logger

	units         atomic.Int32
	stopped       atomic.Bool
	velocityLimit float64
	ackTimeout    time.Duration
}

// NewDispatcher returns a dispatcher staging into outbox. A nil clk uses the wall clock.
func NewDispatcher(
	registry *referenceframe.Registry,
	outbox *Outbox,
	panel InputPanel,
	clk clock.Clock,
	opts Options,
	logger logging.Logger,
) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	if opts.VelocityLimitDeg <= 0 {
		opts.VelocityLimitDeg = DefaultVelocityLimitDeg
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	d := &Dispatcher{
		registry:      registry,
		outbox:        outbox,
		panel:         panel,
		clk:           clk,
		logger:        logger,
		velocityLimit: opts.VelocityLimitDeg,
		ackTimeout:    opts.AckTimeout,
	}
	d.units.Store(int32(opts.Units))
	return d
}

// Units returns the current input units.
func (d *Dispatcher) Units() Units {
	return Units(d.units.Load())
}

// SetUnits changes the input units.
func (d *Dispatcher) SetUnits(u Units) {
	d.units.Store(int32(u))
}

// VelocityLimitDeg is the velocity envelope in degrees per second.
func (d *Dispatcher) VelocityLimitDeg() float64 {
	return d.velocityLimit
}

// Stopped reports whether the emergency stop is engaged.
func (d *Dispatcher) Stopped() bool {
	return d.stopped.Load()
}

// Registry returns the joint registry commands are validated against.
func (d *Dispatcher) Registry() *referenceframe.Registry {
	return d.registry
}

// CheckPosition validates a position for one joint, given in the current units, and returns it in
// radians. The comparison is made in degrees against the joint window.
func (d *Dispatcher) CheckPosition(index int, value float64) (float64, error) {
	lower, upper, err := d.registry.LimitsOf(index)
	if err != nil {
		return 0, NewUnknownModuleError(Module(index).String())
	}
	rad := d.Units().ToRadians(value)
	deg := utils.RadToDeg(rad)
	lowerDeg, upperDeg := utils.RadToDeg(lower), utils.RadToDeg(upper)
	if deg < lowerDeg-limitEpsilon || deg > upperDeg+limitEpsilon {
		return 0, NewOutOfRangeError("position", deg, lowerDeg, upperDeg, "deg")
	}
	return rad, nil
}

// CheckVelocity validates a velocity in the current units per second and returns rad/s.
func (d *Dispatcher) CheckVelocity(value float64) (float64, error) {
	rad := d.Units().ToRadians(value)
	deg := utils.RadToDeg(rad)
	if math.Abs(deg) > d.velocityLimit+limitEpsilon {
		return 0, NewOutOfRangeError("velocity", deg, -d.velocityLimit, d.velocityLimit, "deg/s")
	}
	return rad, nil
}

func (d *Dispatcher) checkModule(target Target) error {
	if !target.All && !d.registry.Valid(target.Index) {
		return NewUnknownModuleError(target.String())
	}
	return nil
}

// Move stages a position command. A single joint uses value, or the panel input when value is nil.
// "all" moves every joint to its panel input and takes no value.
func (d *Dispatcher) Move(target Target, value *float64) error {
	if err := d.checkModule(target); err != nil {
		return err
	}
	if d.Stopped() {
		return ErrEmergencyStopped
	}

	if !target.All {
		in := d.panelPosition(target.Index, value)
		rad, err := d.CheckPosition(target.Index, in)
		if err != nil {
			return err
		}
		name, _ := d.registry.NameOf(target.Index)
		d.outbox.Stage(Command{Kind: KindPosition, Msg: ros.JointState{Name: []string{name}, Position: []float64{rad}}})
		return nil
	}

	if value != nil {
		return errors.Wrap(ErrUnsupported, "move all takes its values from the panel")
	}
	positions := make([]float64, d.registry.Count())
	for i := range positions {
		rad, err := d.CheckPosition(i, d.panel.PositionInput(i))
		if err != nil {
			name, _ := d.registry.NameOf(i)
			return errors.Wrapf(err, "joint %s", name)
		}
		positions[i] = rad
	}
	d.outbox.Stage(Command{Kind: KindPosition, Msg: ros.JointState{Name: d.registry.Names(), Position: positions}})
	return nil
}

// MoveAll stages one position command for every joint from radian values, such as a stored joint
// vector. It fails without staging if any value is outside its window.
func (d *Dispatcher) MoveAll(radians []float64) error {
	if d.Stopped() {
		return ErrEmergencyStopped
	}
	if len(radians) != d.registry.Count() {
		return errors.Wrapf(ErrOutOfRange, "expected %d joint values, got %d", d.registry.Count(), len(radians))
	}
	for i, rad := range radians {
		if _, err := d.CheckPosition(i, d.Units().FromRadians(rad)); err != nil {
			return err
		}
	}
	d.outbox.Stage(Command{
		Kind: KindPosition,
		Msg:  ros.JointState{Name: d.registry.Names(), Position: append([]float64(nil), radians...)},
	})
	return nil
}

func (d *Dispatcher) panelPosition(index int, value *float64) float64 {
	if value != nil {
		return *value
	}
	return d.panel.PositionInput(index)
}

func (d *Dispatcher) panelVelocity(index int, value *float64) float64 {
	if value != nil {
		return *value
	}
	return d.panel.VelocityInput(index)
}

// Velocity stages a velocity command. The joint name travels in the velocity message itself.
func (d *Dispatcher) Velocity(target Target, value *float64) error {
	if err := d.checkModule(target); err != nil {
		return err
	}
	if d.Stopped() {
		return ErrEmergencyStopped
	}

	if !target.All {
		rad, err := d.CheckVelocity(d.panelVelocity(target.Index, value))
		if err != nil {
			return err
		}
		name, _ := d.registry.NameOf(target.Index)
		d.outbox.Stage(Command{Kind: KindVelocity, Msg: ros.JointState{Name: []string{name}, Velocity: []float64{rad}}})
		return nil
	}

	if value != nil {
		return errors.Wrap(ErrUnsupported, "vel all takes its values from the panel")
	}
	velocities := make([]float64, d.registry.Count())
	for i := range velocities {
		rad, err := d.CheckVelocity(d.panel.VelocityInput(i))
		if err != nil {
			name, _ := d.registry.NameOf(i)
			return errors.Wrapf(err, "joint %s", name)
		}
		velocities[i] = rad
	}
	d.outbox.Stage(Command{Kind: KindVelocity, Msg: ros.JointState{Name: d.registry.Names(), Velocity: velocities}})
	return nil
}

// StopVelocities stages zero velocity for every joint. It is accepted during an emergency stop.
func (d *Dispatcher) StopVelocities() {
	d.outbox.Stage(Command{
		Kind: KindVelocity,
		Msg:  ros.JointState{Name: d.registry.Names(), Velocity: make([]float64, d.registry.Count())},
	})
}

// Ack stages an acknowledge for one joint or all of them.
func (d *Dispatcher) Ack(target Target) error {
	if err := d.checkModule(target); err != nil {
		return err
	}
	if target.All {
		d.outbox.Stage(Command{Kind: KindAckAll, Msg: ros.Empty{}})
		return nil
	}
	d.outbox.Stage(Command{Kind: KindAckJoint, Msg: ros.Int8{Data: int8(target.Index)}})
	return nil
}

// Ref stages a reference run for one joint or all of them.
func (d *Dispatcher) Ref(target Target) error {
	if err := d.checkModule(target); err != nil {
		return err
	}
	if target.All {
		d.outbox.Stage(Command{Kind: KindRefAll, Msg: ros.Empty{}})
		return nil
	}
	d.outbox.Stage(Command{Kind: KindRefJoint, Msg: ros.Int8{Data: int8(target.Index)}})
	return nil
}

// MaxCurrent stages the "all modules to maximum current" signal. The driver has no per joint topic,
// so a valid single index returns ErrUnsupported.
func (d *Dispatcher) MaxCurrent(target Target) error {
	if err := d.checkModule(target); err != nil {
		return err
	}
	if !target.All {
		return errors.Wrapf(ErrUnsupported, "max current for module %d", target.Index)
	}
	d.outbox.Stage(Command{Kind: KindMaxCurrentAll, Msg: ros.Empty{}})
	return nil
}

// EngageStop stages the emergency stop signal and refuses movement until ClearStop succeeds.
func (d *Dispatcher) EngageStop() {
	d.stopped.Store(true)
	d.outbox.Stage(Command{Kind: KindEmergencyStop, Msg: ros.Empty{}})
	d.logger.Warn("emergency stop engaged")
}

// ClearStop acknowledges every joint in index order, waiting up to the ack timeout for each
// acknowledge to be published before staging the next. Movement is re-enabled only when all were
// published; on a timeout or a failed publish the stop stays engaged.
func (d *Dispatcher) ClearStop(ctx context.Context) error {
	if !d.Stopped() {
		return nil
	}
	for i := 0; i < d.registry.Count(); i++ {
		d.outbox.Stage(Command{Kind: KindAckJoint, Msg: ros.Int8{Data: int8(i)}})

		waitCtx, cancel := d.clk.WithTimeout(ctx, d.ackTimeout)
		err := d.outbox.WaitSent(waitCtx, KindAckJoint)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			name, _ := d.registry.NameOf(i)
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.Wrapf(ErrAckTimeout, "joint %d (%s) not acknowledged within %v", i, name, d.ackTimeout)
			}
			return errors.Wrapf(err, "acknowledging joint %d (%s)", i, name)
		}
	}
	d.stopped.Store(false)
	d.logger.Info("emergency stop cleared")
	return nil
}

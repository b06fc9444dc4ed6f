// Package sim simulates a Schunk modular arm behind the same topics the real driver uses. It obeys
// position and velocity commands, acknowledge, reference and emergency stop, and publishes joint
// states, device status and the transform tree. Time only advances through updateForTime, which a
// background ticker calls, so tests can drive it deterministically with a mock clock.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/uu-controllers/schunkgui/framesystem"
	"github.com/uu-controllers/schunkgui/kinematics"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/transport"
	"github.com/uu-controllers/schunkgui/utils"
)

// ErrorCodeEmergencyStop is reported by every module after an emergency stop until acknowledged.
const ErrorCodeEmergencyStop uint8 = 0xD9

// commandTopics are the topics the driver listens on.
var commandTopics = []string{
	ros.MoveAllPositionTopic,
	ros.MoveAllVelocityTopic,
	ros.AckTopic,
	ros.RefTopic,
	ros.AckAllTopic,
	ros.RefAllTopic,
	ros.SetCurrentMaxAllTopic,
	ros.EmergencyStopTopic,
}

// Config is used for converting config attributes.
type Config struct {
	// Speed is how quickly position moves travel, in radians per second, the same for each joint.
	Speed float64 `json:"speed,omitempty"`

	// Frequency is how often state is integrated and published, in Hz.
	Frequency float64 `json:"frequency,omitempty"`

	// Shuffle publishes joint states and status in a different order every time, like the driver
	// does when modules report at different rates.
	Shuffle bool  `json:"shuffle,omitempty"`
	Seed    int64 `json:"seed,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate() error {
	if conf.Speed < 0 {
		return errors.New("speed cannot be negative")
	}
	if conf.Frequency < 0 || conf.Frequency > 1000 {
		return errors.New("frequency must be within (0, 1000] Hz")
	}
	return nil
}

type module struct {
	joint        kinematics.Joint
	position     float64
	target       float64
	velocity     float64
	velocityMode bool
	status       ros.JointStatus
}

// moving reports whether the module still has somewhere to go.
func (m *module) moving() bool {
	if m.velocityMode {
		return m.velocity != 0
	}
	return m.position != m.target
}

// Arm is the simulated driver.
type Arm struct {
	model   *kinematics.Model
	pub     transport.Publisher
	sub     transport.Subscriber
	clk     clock.Clock
	speed   float64
	period  time.Duration
	shuffle bool
	logger  logging.Logger

	mu          sync.Mutex
	modules     []*module
	byName      map[string]int
	lastUpdated time.Time
	rng         *rand.Rand
	seq         uint32
	ticks       uint64
	maxCurrent  int
	workers     utils.StoppableWorkers
}

// NewArm builds a simulated arm for model. moduleNames are the joints the driver addresses by
// index, in index order; every other movable joint holds still at zero (or follows its mimic source).
func NewArm(
	model *kinematics.Model,
	moduleNames []string,
	conf Config,
	pub transport.Publisher,
	sub transport.Subscriber,
	clk clock.Clock,
	logger logging.Logger,
) (*Arm, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if len(moduleNames) == 0 {
		return nil, errors.New("simulated arm needs at least one module")
	}
	if clk == nil {
		clk = clock.New()
	}
	speed := 1.0 // 1 radian per second
	if conf.Speed > 0 {
		speed = conf.Speed
	}
	frequency := 50.0
	if conf.Frequency > 0 {
		frequency = conf.Frequency
	}

	a := &Arm{
		model:       model,
		pub:         pub,
		sub:         sub,
		clk:         clk,
		speed:       speed,
		period:      time.Duration(float64(time.Second) / frequency),
		shuffle:     conf.Shuffle,
		logger:      logger,
		byName:      map[string]int{},
		lastUpdated: clk.Now(),
		//nolint:gosec
		rng: rand.New(rand.NewSource(conf.Seed)),
	}
	for i, name := range moduleNames {
		joint, ok := model.Joint(name)
		if !ok || !joint.Movable() || joint.MimicOf != "" {
			return nil, errors.Errorf("module %q is not an independent movable joint of %q", name, model.Name())
		}
		if _, dup := a.byName[name]; dup {
			return nil, errors.Errorf("module %q listed twice", name)
		}
		a.byName[name] = i
		a.modules = append(a.modules, &module{
			joint:  joint,
			status: ros.JointStatus{JointName: name, MoveEnd: true, PosReached: true},
		})
	}
	return a, nil
}

// Start subscribes to the command topics and begins integrating and publishing at the configured
// rate until Close.
func (a *Arm) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.workers != nil {
		return errors.New("simulated arm already started")
	}

	var workers []func(context.Context)
	var cancels []func()
	for _, topic := range commandTopics {
		ch, cancel, err := a.sub.Subscribe(topic)
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return errors.Wrapf(err, "subscribing to %s", topic)
		}
		cancels = append(cancels, cancel)
		topic := topic
		workers = append(workers, func(ctx context.Context) {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					a.handle(topic, msg)
				}
			}
		})
	}
	workers = append(workers, func(ctx context.Context) {
		ticker := a.clk.Ticker(a.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.updateForTime(now)
				if err := a.publishState(ctx); err != nil && ctx.Err() == nil {
					a.logger.Debugw("simulated arm failed to publish", "error", err)
				}
			}
		}
	})
	a.lastUpdated = a.clk.Now()
	a.workers = utils.NewStoppableWorkers(workers...)
	return nil
}

// Close stops the simulation. It is safe to call more than once.
func (a *Arm) Close() error {
	a.mu.Lock()
	workers := a.workers
	a.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	return nil
}

func (a *Arm) handle(topic string, msg ros.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch topic {
	case ros.MoveAllPositionTopic, ros.MoveAllVelocityTopic:
		state, ok := msg.(ros.JointState)
		if !ok {
			a.logger.Warnw("unexpected message type", "topic", topic, "type", msg.MessageType())
			return
		}
		a.applyJointState(topic == ros.MoveAllVelocityTopic, state)
	case ros.AckTopic, ros.RefTopic:
		idx, ok := msg.(ros.Int8)
		if !ok || int(idx.Data) < 0 || int(idx.Data) >= len(a.modules) {
			a.logger.Warnw("ignoring command for unknown module", "topic", topic, "msg", msg)
			return
		}
		if topic == ros.AckTopic {
			a.ack(a.modules[idx.Data])
		} else {
			a.ref(a.modules[idx.Data])
		}
	case ros.AckAllTopic:
		for _, m := range a.modules {
			a.ack(m)
		}
	case ros.RefAllTopic:
		for _, m := range a.modules {
			a.ref(m)
		}
	case ros.SetCurrentMaxAllTopic:
		a.maxCurrent++
		a.logger.Infow("maximum current requested for all modules", "requests", a.maxCurrent)
	case ros.EmergencyStopTopic:
		for _, m := range a.modules {
			m.target = m.position
			m.velocity = 0
			m.velocityMode = false
			m.status.Error = true
			m.status.ErrorCode = ErrorCodeEmergencyStop
			m.status.Brake = true
		}
		a.logger.Warn("simulated arm emergency stopped")
	}
}

func (a *Arm) applyJointState(velocity bool, state ros.JointState) {
	values := state.Position
	if velocity {
		values = state.Velocity
	}
	for i, name := range state.Name {
		if i >= len(values) {
			break
		}
		idx, ok := a.byName[name]
		if !ok {
			a.logger.Debugw("ignoring command for unknown joint", "joint", name)
			continue
		}
		m := a.modules[idx]
		if m.status.Error {
			a.logger.Debugw("module in error, command ignored until acknowledged", "joint", name)
			continue
		}
		if velocity {
			m.velocityMode = true
			m.velocity = values[i]
		} else {
			m.velocityMode = false
			m.velocity = 0
			m.target = a.clampToLimits(m.joint, values[i])
		}
		m.status.Brake = false
	}
}

func (a *Arm) clampToLimits(joint kinematics.Joint, v float64) float64 {
	if joint.Max <= joint.Min {
		return v
	}
	return utils.Clamp(v, joint.Min, joint.Max)
}

func (a *Arm) ack(m *module) {
	m.status.Error = false
	m.status.ErrorCode = 0
	m.status.Warning = false
}

// ref drives a module to its zero position and marks it referenced.
func (a *Arm) ref(m *module) {
	if m.status.Error {
		return
	}
	m.status.Referenced = true
	m.velocityMode = false
	m.velocity = 0
	m.target = a.clampToLimits(m.joint, 0)
	m.status.Brake = false
}

// updateForTime advances every module by the time since the previous update. Position moves travel
// at speed until they reach their target; velocity moves integrate and stop at the joint limits.
func (a *Arm) updateForTime(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dt := now.Sub(a.lastUpdated).Seconds()
	a.lastUpdated = now
	if dt < 0 {
		dt = 0
	}
	for _, m := range a.modules {
		if m.velocityMode {
			next := m.position + m.velocity*dt
			clamped := a.clampToLimits(m.joint, next)
			if clamped != next {
				m.velocity = 0
			}
			m.position = clamped
			m.target = m.position
		} else {
			const epsilon = 1e-9
			diff := m.target - m.position
			step := dt * a.speed
			if step > math.Abs(diff)-epsilon {
				m.position = m.target
			} else {
				m.position += math.Copysign(step, diff)
			}
		}
		moving := m.moving()
		m.status.Moving = moving
		m.status.MoveEnd = !moving
		m.status.PosReached = !m.velocityMode && !moving
		m.status.Current = 0
		if moving {
			m.status.Current = 1.5
		}
	}
}

// Positions returns every module's position keyed by joint name.
func (a *Arm) Positions() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionsLocked()
}

func (a *Arm) positionsLocked() map[string]float64 {
	out := make(map[string]float64, len(a.modules))
	for _, m := range a.modules {
		out[m.joint.Name] = m.position
	}
	return out
}

// Status returns the device status of one module.
func (a *Arm) Status(index int) (ros.JointStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.modules) {
		return ros.JointStatus{}, false
	}
	return a.modules[index].status, true
}

// MaxCurrentRequests counts set-current-max-all commands received.
func (a *Arm) MaxCurrentRequests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxCurrent
}

// publishState sends one joint state, one status and the dynamic transforms. The fixed transforms
// go out on /tf_static about once a second so late subscribers still see them.
func (a *Arm) publishState(ctx context.Context) error {
	a.mu.Lock()
	now := a.clk.Now()
	a.seq++
	header := ros.Header{Seq: a.seq, Stamp: ros.NewTime(now)}
	values := a.model.Resolve(a.positionsLocked())
	local := a.model.LocalTransforms(values)

	state := ros.JointState{Header: header}
	for _, name := range a.model.MovableJoints() {
		state.Name = append(state.Name, name)
		state.Position = append(state.Position, values[name])
		state.Velocity = append(state.Velocity, a.velocityOf(name))
		state.Effort = append(state.Effort, 0)
	}
	status := ros.SchunkStatus{Joints: make([]ros.JointStatus, len(a.modules))}
	for i, m := range a.modules {
		status.Joints[i] = m.status
	}
	if a.shuffle {
		a.rng.Shuffle(len(state.Name), func(i, j int) {
			state.Name[i], state.Name[j] = state.Name[j], state.Name[i]
			state.Position[i], state.Position[j] = state.Position[j], state.Position[i]
			state.Velocity[i], state.Velocity[j] = state.Velocity[j], state.Velocity[i]
		})
		a.rng.Shuffle(len(status.Joints), func(i, j int) {
			status.Joints[i], status.Joints[j] = status.Joints[j], status.Joints[i]
		})
	}

	var dynamic, static ros.TFMessage
	for _, j := range a.model.Joints() {
		tf := ros.TransformStamped{
			Header:       ros.Header{Stamp: header.Stamp, FrameID: j.Parent},
			ChildFrameID: j.Child,
			Transform:    framesystem.ToMsg(local[j.Name]),
		}
		if j.Movable() {
			dynamic.Transforms = append(dynamic.Transforms, tf)
		} else {
			static.Transforms = append(static.Transforms, tf)
		}
	}
	staticEvery := uint64(math.Max(1, math.Round(float64(time.Second)/float64(a.period))))
	sendStatic := a.ticks%staticEvery == 0
	a.ticks++
	a.mu.Unlock()

	err := multierr.Combine(
		a.pub.Publish(ctx, ros.JointStatesTopic, state),
		a.pub.Publish(ctx, ros.SchunkStatusTopic, status),
		a.pub.Publish(ctx, ros.TFTopic, dynamic),
	)
	if sendStatic && len(static.Transforms) > 0 {
		err = multierr.Append(err, a.pub.Publish(ctx, ros.TFStaticTopic, static))
	}
	return err
}

func (a *Arm) velocityOf(name string) float64 {
	idx, ok := a.byName[name]
	if !ok || !a.modules[idx].moving() {
		return 0
	}
	m := a.modules[idx]
	if m.velocityMode {
		return m.velocity
	}
	return math.Copysign(a.speed, m.target-m.position)
}

package console

import (
	"math"
	"sync"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/utils"
)

// Window is an inclusive input range in the panel's current units.
type Window struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies in the window.
func (w Window) Contains(v float64) bool {
	return v >= w.Lower && v <= w.Upper
}

// Panel holds the per joint position and velocity inputs an operator edits before sending "move"
// or "vel" without a value. Inputs are clamped to their windows and follow the unit toggle.
type Panel struct {
	mu               sync.Mutex
	units            command.Units
	degWindows       []Window
	velocityLimitDeg float64
	positions        []float64
	velocities       []float64
}

// NewPanel returns a panel with every input at zero. Position windows are the joint limits in
// whole degrees widened by one degree on each side.
func NewPanel(registry *referenceframe.Registry, units command.Units, velocityLimitDeg float64) *Panel {
	if velocityLimitDeg <= 0 {
		velocityLimitDeg = command.DefaultVelocityLimitDeg
	}
	p := &Panel{
		units:            units,
		velocityLimitDeg: velocityLimitDeg,
		positions:        make([]float64, registry.Count()),
		velocities:       make([]float64, registry.Count()),
	}
	for _, j := range registry.Joints() {
		p.degWindows = append(p.degWindows, Window{
			Lower: math.Trunc(utils.RadToDeg(j.Min)) - 1,
			Upper: math.Trunc(utils.RadToDeg(j.Max)) + 1,
		})
	}
	return p
}

// Count is the number of joints.
func (p *Panel) Count() int {
	return len(p.positions)
}

// Units returns the units inputs are held in.
func (p *Panel) Units() command.Units {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.units
}

// SetUnits converts every input to u.
func (p *Panel) SetUnits(u command.Units) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u == p.units {
		return
	}
	for i := range p.positions {
		p.positions[i] = u.FromRadians(p.units.ToRadians(p.positions[i]))
		p.velocities[i] = u.FromRadians(p.units.ToRadians(p.velocities[i]))
	}
	p.units = u
}

// PositionWindow is the position input range of joint i in the current units.
func (p *Panel) PositionWindow(i int) (Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionWindowLocked(i)
}

func (p *Panel) positionWindowLocked(i int) (Window, error) {
	if i < 0 || i >= len(p.degWindows) {
		return Window{}, command.NewUnknownModuleError(command.Module(i).String())
	}
	w := p.degWindows[i]
	if p.units == command.Radians {
		w = Window{Lower: utils.DegToRad(w.Lower), Upper: utils.DegToRad(w.Upper)}
	}
	return w, nil
}

// VelocityWindow is the velocity input range in the current units.
func (p *Panel) VelocityWindow() Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.velocityWindowLocked()
}

func (p *Panel) velocityWindowLocked() Window {
	limit := p.velocityLimitDeg
	if p.units == command.Radians {
		limit = utils.DegToRad(limit)
	}
	return Window{Lower: -limit, Upper: limit}
}

// PositionInput implements command.InputPanel.
func (p *Panel) PositionInput(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.positions) {
		return 0
	}
	return p.positions[i]
}

// VelocityInput implements command.InputPanel.
func (p *Panel) VelocityInput(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.velocities) {
		return 0
	}
	return p.velocities[i]
}

// SetPosition stores a position input, clamped to the joint's window, and returns the stored value.
func (p *Panel) SetPosition(i int, v float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, err := p.positionWindowLocked(i)
	if err != nil {
		return 0, err
	}
	p.positions[i] = utils.Clamp(v, w.Lower, w.Upper)
	return p.positions[i], nil
}

// SetVelocity stores a velocity input, clamped to the velocity envelope, and returns the stored value.
func (p *Panel) SetVelocity(i int, v float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.velocities) {
		return 0, command.NewUnknownModuleError(command.Module(i).String())
	}
	w := p.velocityWindowLocked()
	p.velocities[i] = utils.Clamp(v, w.Lower, w.Upper)
	return p.velocities[i], nil
}

// Positions returns a copy of every position input.
func (p *Panel) Positions() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.positions...)
}

// Velocities returns a copy of every velocity input.
func (p *Panel) Velocities() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.velocities...)
}

// SetPositions stores the first min(len(values), Count) inputs, each clamped to its window.
func (p *Panel) SetPositions(values []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < len(values) && i < len(p.positions); i++ {
		w, _ := p.positionWindowLocked(i)
		p.positions[i] = utils.Clamp(values[i], w.Lower, w.Upper)
	}
}

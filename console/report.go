package console

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/spatialmath"
	"github.com/uu-controllers/schunkgui/telemetry"
	"github.com/uu-controllers/schunkgui/utils"
)

const (
	// positions closer to zero than this, in degrees, are displayed as zero.
	displaySnapDeg = 0.05
	missing        = "."
)

// ErrJointNotReported is returned by the flags report for every joint absent from the latest
// telemetry.
var ErrJointNotReported = errors.New("joint not reported")

func newJointStateMissingError(name string) error {
	return errors.Wrapf(ErrJointNotReported, "Joint '%s' not found in JointState message!", name)
}

func newStatusMissingError(name string) error {
	return errors.Wrapf(ErrJointNotReported, "Joint '%s' not found in SchunkStatus message!", name)
}

// painter highlights flag cells that are in their abnormal state.
type painter struct {
	red *color.Color
}

func newPainter(enabled bool) painter {
	red := color.New(color.FgRed)
	if enabled {
		red.EnableColor()
	} else {
		red.DisableColor()
	}
	return painter{red: red}
}

func (p painter) flag(v, abnormal bool) string {
	s := strconv.FormatBool(v)
	if v == abnormal {
		return p.red.Sprint(s)
	}
	return s
}

// FormatPosition renders a radian position as "deg / rad".
func FormatPosition(rad float64) string {
	deg := utils.SnapToZero(utils.RadToDeg(rad), displaySnapDeg)
	return fmt.Sprintf("%.2f / %.3f", deg, rad)
}

// FlagsTable renders the position and device status of every joint. Joints missing from either
// telemetry stream render as "." in the affected columns; each absence is also returned as an error.
func FlagsTable(registry *referenceframe.Registry, rec *telemetry.Reconciler, colors bool) (string, error) {
	p := newPainter(colors)
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"# (Name)", "Position", "Referenced", "MoveEnd", "Brake", "Warning",
		"Current", "Moving", "PosReached", "Error", "Error code",
	})

	var errs error
	for i, name := range registry.Names() {
		row := table.Row{fmt.Sprintf("%d (%s)", i, name)}
		if pos, ok := rec.Position(i); ok {
			row = append(row, FormatPosition(pos))
		} else {
			row = append(row, missing)
			errs = multierr.Append(errs, newJointStateMissingError(name))
		}
		if st, ok := rec.JointStatus(i); ok {
			row = append(row, statusCells(p, st)...)
		} else {
			for j := 0; j < 9; j++ {
				row = append(row, missing)
			}
			errs = multierr.Append(errs, newStatusMissingError(name))
		}
		t.AppendRow(row)
	}
	return t.Render(), errs
}

func statusCells(p painter, st ros.JointStatus) []interface{} {
	code := strconv.Itoa(int(st.ErrorCode))
	if st.ErrorCode != 0 {
		code = p.red.Sprint(code)
	}
	return []interface{}{
		p.flag(st.Referenced, false),
		p.flag(st.MoveEnd, false),
		p.flag(st.Brake, false),
		p.flag(st.Warning, true),
		fmt.Sprintf("%.2f", st.Current),
		p.flag(st.Moving, true),
		p.flag(st.PosReached, false),
		p.flag(st.Error, true),
		code,
	}
}

// PoseTable renders an end effector pose. Roll, pitch and yaw are the heading, attitude and bank
// of the orientation in degrees.
func PoseTable(pose spatialmath.EndEffectorPose) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"x", "y", "z", "roll", "pitch", "yaw", "qx", "qy", "qz", "qw"})
	c := pose.Components()
	rpy := pose.RPYDegrees()
	row := table.Row{}
	for _, v := range []float64{c[0], c[1], c[2], rpy[0], rpy[1], rpy[2], c[3], c[4], c[5], c[6]} {
		row = append(row, fmt.Sprintf("%.2f", v))
	}
	t.AppendRow(row)
	return t.Render()
}

// PanelTable renders the operator inputs with their windows.
func PanelTable(registry *referenceframe.Registry, panel *Panel) string {
	units := panel.Units()
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"# (Name)",
		fmt.Sprintf("Position (%s)", units),
		"Range",
		fmt.Sprintf("Velocity (%s/s)", units),
	})
	positions, velocities := panel.Positions(), panel.Velocities()
	for i, name := range registry.Names() {
		w, _ := panel.PositionWindow(i)
		t.AppendRow(table.Row{
			fmt.Sprintf("%d (%s)", i, name),
			formatInput(positions[i], units),
			formatWindow(w),
			formatInput(velocities[i], units),
		})
	}
	vw := panel.VelocityWindow()
	t.AppendFooter(table.Row{"", "", "", "range " + formatWindow(vw)})
	return t.Render()
}

func formatInput(v float64, units command.Units) string {
	if units == command.Radians {
		return fmt.Sprintf("%.3f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func formatWindow(w Window) string {
	return fmt.Sprintf("%.4g to %.4g", w.Lower, w.Upper)
}

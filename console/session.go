// Package console is the operator's text front end: it parses command lines, keeps the input panel
// and the joint vector library, and renders the flag and pose reports.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/config"
	"github.com/uu-controllers/schunkgui/endeffector"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/posefile"
	"github.com/uu-controllers/schunkgui/telemetry"
	"github.com/uu-controllers/schunkgui/utils"
)

// Severity ranks a status line.
type Severity int

// The status severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Status is what the operator sees after a command or while typing one.
type Status struct {
	Severity Severity
	Text     string
}

func info(format string, args ...interface{}) Status {
	return Status{Severity: SeverityInfo, Text: fmt.Sprintf(format, args...)}
}

func warning(format string, args ...interface{}) Status {
	return Status{Severity: SeverityWarning, Text: fmt.Sprintf(format, args...)}
}

var (
	// ErrUnknownCommand is returned for a first word outside the vocabulary.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingModule is returned by move and vel when no module is given.
	ErrMissingModule = errors.New("need to specify module id or 'all'")
	// ErrUsage is returned for a known command with the wrong arguments.
	ErrUsage = errors.New("usage")
	// ErrDegreesOnly is returned when editing joint vectors while inputs are in radians.
	ErrDegreesOnly = errors.New("joint vectors can only be edited in degrees")
	// ErrQuit is returned by the quit command to end the REPL.
	ErrQuit = errors.New("quit")
)

// Vocabulary is every command word, in the order help lists them.
var Vocabulary = []string{
	"help", "ack", "ref", "move", "vel", "curmax", "estop", "go", "units", "set", "setvel",
	"copy", "save", "load", "vec", "flags", "pose", "show", "history", "quit",
}

var usages = map[string]string{
	"help":    "help",
	"ack":     "ack [<module>|all]",
	"ref":     "ref [<module>|all]",
	"move":    "move <module>|all [<value>]",
	"vel":     "vel <module>|all|stop [<value>]",
	"curmax":  "curmax [all]",
	"estop":   "estop",
	"go":      "go",
	"units":   "units [deg|rad]",
	"set":     "set <module> <value>",
	"setvel":  "setvel <module> <value>",
	"copy":    "copy",
	"save":    "save <file>",
	"load":    "load <file>",
	"vec":     "vec list | add [<name>] [before|after <name>] | rm <name> | use <name> | move <name> | save <file> | load <file>",
	"flags":   "flags",
	"pose":    "pose",
	"show":    "show",
	"history": "history",
	"quit":    "quit",
}

func usageError(word string) error {
	return errors.Wrap(ErrUsage, usages[word])
}

// Options configure a Session.
type Options struct {
	Mode   string
	Colors bool
}

// Session executes operator command lines against the dispatcher.
type Session struct {
	dispatcher *command.Dispatcher
	reconciler *telemetry.Reconciler
	estimator  *endeffector.Estimator
	panel      *Panel
	history    *History
	library    *posefile.Library
	opts       Options
	logger     logging.Logger
}

// NewSession returns a session. history may be nil to keep no history.
func NewSession(
	dispatcher *command.Dispatcher,
	reconciler *telemetry.Reconciler,
	estimator *endeffector.Estimator,
	panel *Panel,
	history *History,
	opts Options,
	logger logging.Logger,
) *Session {
	if opts.Mode == "" {
		opts.Mode = config.ModeFull
	}
	if history == nil {
		history, _ = LoadHistory("", 0)
	}
	panel.SetUnits(dispatcher.Units())
	return &Session{
		dispatcher: dispatcher,
		reconciler: reconciler,
		estimator:  estimator,
		panel:      panel,
		history:    history,
		library:    posefile.NewLibrary(),
		opts:       opts,
		logger:     logger,
	}
}

// Panel returns the input panel.
func (s *Session) Panel() *Panel {
	return s.panel
}

// Library returns the joint vector library.
func (s *Session) Library() *posefile.Library {
	return s.library
}

// History returns the command history.
func (s *Session) History() *History {
	return s.history
}

// Execute runs one command line. A failed command returns an error status together with the error;
// nothing is staged for it.
func (s *Session) Execute(ctx context.Context, line string) (Status, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Status{}, nil
	}
	if err := s.history.Append(line); err != nil {
		s.logger.Warnw("failed to record history", "error", err)
	}

	st, err := s.execute(ctx, tokens)
	if err != nil {
		if errors.Is(err, ErrQuit) {
			return info("bye"), err
		}
		s.logger.Debugw("command failed", "command", line, "error", err)
		return Status{Severity: SeverityError, Text: fmt.Sprintf("%s failed: %v", tokens[0], err)}, err
	}
	return st, nil
}

func (s *Session) execute(ctx context.Context, tokens []string) (Status, error) {
	word, args := tokens[0], tokens[1:]
	switch word {
	case "help":
		return s.help(args)
	case "ack":
		return s.addressed(args, word, s.dispatcher.Ack)
	case "ref":
		return s.addressed(args, word, s.dispatcher.Ref)
	case "curmax":
		return s.addressed(args, word, s.dispatcher.MaxCurrent)
	case "move":
		return s.move(args)
	case "vel":
		return s.velocity(args)
	case "estop":
		s.dispatcher.EngageStop()
		return warning("emergency stop engaged, use 'go' to acknowledge every module and resume"), nil
	case "go":
		if err := s.dispatcher.ClearStop(ctx); err != nil {
			return Status{}, err
		}
		return info("emergency stop cleared"), nil
	case "units":
		return s.units(args)
	case "set":
		return s.set(args, word, s.panel.SetPosition)
	case "setvel":
		return s.set(args, word, s.panel.SetVelocity)
	case "copy":
		return s.copyPositions()
	case "save":
		if len(args) != 1 {
			return Status{}, usageError(word)
		}
		if err := posefile.SavePose(args[0], s.panel.Positions()); err != nil {
			return Status{}, err
		}
		return info("pose saved to %s", args[0]), nil
	case "load":
		if len(args) != 1 {
			return Status{}, usageError(word)
		}
		values, err := posefile.LoadPose(args[0], s.panel.Count())
		if err != nil {
			return Status{}, err
		}
		s.panel.SetPositions(values)
		return info("loaded %d values from %s", len(values), args[0]), nil
	case "vec":
		return s.vector(args)
	case "flags":
		return s.flags()
	case "pose":
		return s.pose(ctx)
	case "show":
		return s.show(ctx)
	case "history":
		return info("%s", strings.Join(s.history.Entries(), "\n")), nil
	case "quit", "exit":
		return Status{}, ErrQuit
	}
	return Status{}, errors.Wrapf(ErrUnknownCommand, "%q, type 'help' for the vocabulary", word)
}

func (s *Session) help(args []string) (Status, error) {
	if len(args) > 0 {
		u, ok := usages[args[0]]
		if !ok {
			return Status{}, errors.Wrapf(ErrUnknownCommand, "%q", args[0])
		}
		return info("%s", u), nil
	}
	return info("%s", strings.Join(lo.Map(Vocabulary, func(w string, _ int) string { return usages[w] }), "\n")), nil
}

// addressed runs a command whose only argument is a module; no argument addresses all of them.
func (s *Session) addressed(args []string, word string, fn func(command.Target) error) (Status, error) {
	if len(args) > 1 {
		return Status{}, usageError(word)
	}
	token := ""
	if len(args) == 1 {
		token = args[0]
	}
	target, err := command.ParseTarget(token, s.panel.Count())
	if err != nil {
		return Status{}, err
	}
	if err := fn(target); err != nil {
		return Status{}, err
	}
	return info("%s %s", word, target), nil
}

func (s *Session) targetAndValue(args []string, word string) (command.Target, *float64, error) {
	if len(args) == 0 {
		return command.Target{}, nil, ErrMissingModule
	}
	if len(args) > 2 {
		return command.Target{}, nil, usageError(word)
	}
	target, err := command.ParseTarget(args[0], s.panel.Count())
	if err != nil {
		return command.Target{}, nil, err
	}
	var value *float64
	if len(args) == 2 {
		if value, err = command.ParseValue(args[1]); err != nil {
			return command.Target{}, nil, err
		}
	}
	return target, value, nil
}

func (s *Session) move(args []string) (Status, error) {
	target, value, err := s.targetAndValue(args, "move")
	if err != nil {
		return Status{}, err
	}
	if err := s.dispatcher.Move(target, value); err != nil {
		return Status{}, err
	}
	return info("move %s", target), nil
}

func (s *Session) velocity(args []string) (Status, error) {
	if len(args) == 1 && args[0] == "stop" {
		s.dispatcher.StopVelocities()
		return info("all velocities set to zero"), nil
	}
	target, value, err := s.targetAndValue(args, "vel")
	if err != nil {
		return Status{}, err
	}
	if err := s.dispatcher.Velocity(target, value); err != nil {
		return Status{}, err
	}
	return info("vel %s", target), nil
}

func (s *Session) units(args []string) (Status, error) {
	switch len(args) {
	case 0:
		return info("units are %s", s.dispatcher.Units()), nil
	case 1:
	default:
		return Status{}, usageError("units")
	}
	u, err := command.ParseUnits(args[0])
	if err != nil {
		return Status{}, err
	}
	s.panel.SetUnits(u)
	s.dispatcher.SetUnits(u)
	return info("units are %s", u), nil
}

func (s *Session) set(args []string, word string, store func(int, float64) (float64, error)) (Status, error) {
	if len(args) != 2 {
		return Status{}, usageError(word)
	}
	target, err := command.ParseTarget(args[0], s.panel.Count())
	if err != nil {
		return Status{}, err
	}
	if target.All {
		return Status{}, usageError(word)
	}
	value, err := command.ParseValue(args[1])
	if err != nil {
		return Status{}, err
	}
	stored, err := store(target.Index, *value)
	if err != nil {
		return Status{}, err
	}
	if stored != *value {
		return warning("module %d input clamped to %.4g %s", target.Index, stored, s.panel.Units()), nil
	}
	return info("module %d input set to %.4g %s", target.Index, stored, s.panel.Units()), nil
}

// copyPositions fills the position inputs with the latest reported joint positions.
func (s *Session) copyPositions() (Status, error) {
	registry := s.dispatcher.Registry()
	units := s.panel.Units()
	values := make([]float64, registry.Count())
	for i := range values {
		rad, ok := s.reconciler.Position(i)
		if !ok {
			name, _ := registry.NameOf(i)
			return Status{}, newJointStateMissingError(name)
		}
		if units == command.Degrees {
			values[i] = utils.SnapToZero(utils.RadToDeg(rad), displaySnapDeg)
		} else {
			values[i] = rad
		}
	}
	s.panel.SetPositions(values)
	return info("copied %d joint positions to the inputs", len(values)), nil
}

func (s *Session) requireDegrees() error {
	if s.panel.Units() != command.Degrees {
		return ErrDegreesOnly
	}
	return nil
}

func (s *Session) vector(args []string) (Status, error) {
	if len(args) == 0 {
		return Status{}, usageError("vec")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		var b strings.Builder
		if err := s.library.Write(&b); err != nil {
			return Status{}, err
		}
		return info("%s", strings.TrimRight(b.String(), "\n")), nil
	case "add":
		return s.addVector(rest)
	case "rm":
		if len(rest) != 1 {
			return Status{}, usageError("vec")
		}
		if err := s.requireDegrees(); err != nil {
			return Status{}, err
		}
		if err := s.library.Remove(rest[0]); err != nil {
			return Status{}, err
		}
		return info("removed %s", rest[0]), nil
	case "use":
		if len(rest) != 1 {
			return Status{}, usageError("vec")
		}
		values, err := s.library.Get(rest[0])
		if err != nil {
			return Status{}, err
		}
		if s.panel.Units() == command.Radians {
			values = lo.Map(values, func(deg float64, _ int) float64 { return utils.DegToRad(deg) })
		}
		s.panel.SetPositions(values)
		return info("inputs set from %s", rest[0]), nil
	case "move":
		if len(rest) != 1 {
			return Status{}, usageError("vec")
		}
		values, err := s.library.Get(rest[0])
		if err != nil {
			return Status{}, err
		}
		if err := s.dispatcher.MoveAll(lo.Map(values, func(deg float64, _ int) float64 {
			return utils.DegToRad(deg)
		})); err != nil {
			return Status{}, err
		}
		return info("move all to %s", rest[0]), nil
	case "save":
		if len(rest) != 1 {
			return Status{}, usageError("vec")
		}
		if err := s.library.Save(rest[0]); err != nil {
			return Status{}, err
		}
		return info("saved %d joint vectors to %s", s.library.Len(), rest[0]), nil
	case "load":
		if len(rest) != 1 {
			return Status{}, usageError("vec")
		}
		lib, err := posefile.LoadLibrary(rest[0])
		if err != nil {
			return Status{}, err
		}
		s.library = lib
		return info("loaded %d joint vectors from %s", lib.Len(), rest[0]), nil
	}
	return Status{}, usageError("vec")
}

// addVector stores the position inputs under a name, generated when none is given.
func (s *Session) addVector(args []string) (Status, error) {
	if err := s.requireDegrees(); err != nil {
		return Status{}, err
	}
	name := ""
	if len(args) == 1 || len(args) == 3 {
		name, args = args[0], args[1:]
	}
	where, anchor := posefile.AtEnd, ""
	switch len(args) {
	case 0:
	case 2:
		switch args[0] {
		case "before":
			where = posefile.Before
		case "after":
			where = posefile.After
		default:
			return Status{}, usageError("vec")
		}
		anchor = args[1]
	default:
		return Status{}, usageError("vec")
	}
	if name == "" {
		name = s.library.UniqueName()
	}
	if err := s.library.Insert(name, s.panel.Positions(), where, anchor); err != nil {
		return Status{}, err
	}
	return info("added %s", name), nil
}

func (s *Session) flags() (Status, error) {
	out, err := FlagsTable(s.dispatcher.Registry(), s.reconciler, s.opts.Colors)
	if err != nil {
		return Status{Severity: SeverityError, Text: out + "\n" + err.Error()}, nil
	}
	return info("%s", out), nil
}

func (s *Session) pose(ctx context.Context) (Status, error) {
	p, err := s.estimator.Pose(ctx)
	out := PoseTable(p)
	if err != nil {
		return Status{Severity: SeverityError, Text: out + "\n" + err.Error()}, nil
	}
	return info("%s", out), nil
}

// show renders the sections the display mode includes: full has everything, medium drops the
// input panel and mini also drops the flags.
func (s *Session) show(ctx context.Context) (Status, error) {
	var sections []string
	worst := SeverityInfo
	add := func(st Status) {
		sections = append(sections, st.Text)
		if st.Severity > worst {
			worst = st.Severity
		}
	}
	if s.estimator.Enabled() {
		st, _ := s.pose(ctx)
		add(st)
	}
	if s.opts.Mode != config.ModeMini {
		st, _ := s.flags()
		add(st)
	}
	if s.opts.Mode == config.ModeFull {
		add(info("%s", PanelTable(s.dispatcher.Registry(), s.panel)))
	}
	if s.dispatcher.Stopped() {
		add(warning("emergency stop engaged"))
	}
	return Status{Severity: worst, Text: strings.Join(sections, "\n")}, nil
}

// Hint is the status shown while a command is being typed: the input range of the addressed module
// or a warning when the module or value is out of reach. It never stages anything.
func (s *Session) Hint(partial string) Status {
	tokens := strings.Fields(partial)
	if len(tokens) < 2 {
		return Status{}
	}
	index, err := strconv.Atoi(tokens[1])
	if err != nil {
		return Status{}
	}
	if index < 0 || index >= s.panel.Count() {
		return warning("module does not exist")
	}
	units := s.panel.Units()

	var w Window
	switch tokens[0] {
	case "move", "set":
		w, _ = s.panel.PositionWindow(index)
		if st, ok := outOfWindow(tokens, w); ok {
			return st
		}
		return info("Range (%s): %s", units, formatWindow(w))
	case "vel", "setvel":
		w = s.panel.VelocityWindow()
		if st, ok := outOfWindow(tokens, w); ok {
			return st
		}
		return info("Range (%s/s): %s", units, formatWindow(w))
	}
	return Status{}
}

func outOfWindow(tokens []string, w Window) (Status, bool) {
	if len(tokens) < 3 {
		return Status{}, false
	}
	value, err := command.ParseValue(tokens[2])
	if err != nil || value == nil || w.Contains(*value) {
		return Status{}, false
	}
	return warning("value out of range (%s)", formatWindow(w)), true
}

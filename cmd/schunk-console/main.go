// Package main is the operator console for a Schunk modular arm.
package main

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/uu-controllers/schunkgui/command"
	"github.com/uu-controllers/schunkgui/components/arm/sim"
	"github.com/uu-controllers/schunkgui/config"
	"github.com/uu-controllers/schunkgui/console"
	"github.com/uu-controllers/schunkgui/control"
	"github.com/uu-controllers/schunkgui/endeffector"
	"github.com/uu-controllers/schunkgui/framesystem"
	"github.com/uu-controllers/schunkgui/kinematics"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/telemetry"
	"github.com/uu-controllers/schunkgui/transport"
	"github.com/uu-controllers/schunkgui/transport/rosbridge"
)

const (
	flagConfig      = "config"
	flagDescription = "description"
	flagTransport   = "transport"
	flagURL         = "url"
	flagBag         = "bag"
	flagMode        = "mode"
	flagDebug       = "debug"

	busBufferSize = 64
)

var logger = logging.NewLogger("schunk-console")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "schunk-console",
		Usage: "command a Schunk modular arm and watch its joints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to a console config file",
			},
			&cli.StringFlag{
				Name:  flagDescription,
				Usage: "robot description (URDF) file, overrides the config",
			},
			&cli.StringFlag{
				Name:  flagTransport,
				Usage: "sim, rosbridge or replay, overrides the config",
			},
			&cli.StringFlag{
				Name:  flagURL,
				Usage: "rosbridge websocket url, overrides the config",
			},
			&cli.StringFlag{
				Name:  flagBag,
				Usage: "bag file to replay, overrides the config",
			},
			&cli.StringFlag{
				Name:  flagMode,
				Usage: "display mode: full, medium or mini",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "log at debug level",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromFlags(c, logger)
			if err != nil {
				return err
			}
			rootLogger, closeLogs, err := logging.NewLoggerFromConfig("schunk", cfg.Log)
			if err != nil {
				return err
			}
			defer goutils.UncheckedErrorFunc(closeLogs)
			if c.Bool(flagDebug) {
				rootLogger.SetLevel(logging.DEBUG)
			}
			interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
			return run(c.Context, cfg, os.Stdin, c.App.Writer, interactive, rootLogger)
		},
	}
}

// configFromFlags reads the config file, or builds a default one around --description, then applies
// the flag overrides and validates the result.
func configFromFlags(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String(flagConfig); path != "" {
		cfg, err = config.Read(path, logger)
	} else {
		if c.String(flagDescription) == "" {
			return nil, errors.New("need a --config file or a --description")
		}
		cfg, err = config.Default(c.String(flagDescription), logger)
	}
	if err != nil {
		return nil, err
	}

	if v := c.String(flagDescription); v != "" {
		cfg.DescriptionPath, cfg.Description = v, ""
	}
	if v := c.String(flagTransport); v != "" {
		cfg.Transport.Kind = v
	}
	if v := c.String(flagURL); v != "" {
		cfg.Transport.URL = v
	}
	if v := c.String(flagBag); v != "" {
		cfg.Transport.Bag = v
	}
	if v := c.String(flagMode); v != "" {
		cfg.Mode = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run wires the console together and blocks until the operator quits, the input ends or ctx is done.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, interactive bool, logger logging.Logger) error {
	xml, err := cfg.DescriptionXML()
	if err != nil {
		return err
	}
	registry, err := referenceframe.LoadRegistry(xml, cfg.DependentJoints)
	if err != nil {
		return err
	}
	units, err := command.ParseUnits(cfg.Units)
	if err != nil {
		return err
	}
	logger.Infow("loaded robot description", "joints", registry.Names())

	loggers := &loggerSet{root: logger}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	conn, err := openTransport(gctx, cfg, xml, registry, g, loggers.sub("transport"))
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(conn.Close)

	reconciler := telemetry.NewReconciler(registry, nil, loggers.sub("telemetry"))
	buffer := framesystem.NewBuffer(loggers.sub("tf"))
	outbox := command.NewOutbox(loggers.sub("outbox"))
	panel := console.NewPanel(registry, units, cfg.VelocityLimitDeg)
	dispatcher := command.NewDispatcher(registry, outbox, panel, nil, command.Options{
		Units:            units,
		VelocityLimitDeg: cfg.VelocityLimitDeg,
		AckTimeout:       cfg.EstopAckTimeout.Unwrap(),
	}, loggers.sub("command"))

	loop, err := control.NewLoop(loggers.sub("loop"), control.Config{Frequency: cfg.LoopRateHz}, outbox, conn, nil)
	if err != nil {
		return err
	}
	if err := loop.Start(
		func(ctx context.Context) {
			if err := reconciler.Run(ctx, conn); err != nil && ctx.Err() == nil {
				logger.Errorw("telemetry stopped", "error", err)
			}
		},
		func(ctx context.Context) {
			if err := buffer.Run(ctx, conn); err != nil && ctx.Err() == nil {
				logger.Errorw("transform buffer stopped", "error", err)
			}
		},
	); err != nil {
		return err
	}
	defer loop.Stop()

	estimator := endeffector.NewEstimator(buffer, endeffector.Config{
		RootFrame: cfg.RootFrame,
		TipFrame:  cfg.TipFrame,
		Timeout:   cfg.TransformTimeout.Unwrap(),
	}, nil, loggers.sub("pose"))

	history, err := console.LoadHistory(cfg.HistoryFile, cfg.HistoryLength)
	if err != nil {
		logger.Warnw("starting without command history", "error", err)
		history = nil
	}
	session := console.NewSession(dispatcher, reconciler, estimator, panel, history, console.Options{
		Mode:   cfg.Mode,
		Colors: interactive,
	}, loggers.sub("console"))

	if cfg.ConfigFilePath != "" {
		watcher, err := config.NewWatcher(cfg.ConfigFilePath, loggers.sub("config"))
		if err != nil {
			logger.Warnw("config changes will not be picked up", "error", err)
		} else {
			defer goutils.UncheckedErrorFunc(watcher.Close)
			g.Go(func() error {
				return ignoreCanceled(watcher.Run(gctx, func(changed *config.Config) {
					loggers.apply(changed.Log)
				}))
			})
		}
	}

	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(console.NewREPL(session, in, out, interactive).Run(gctx))
	})
	return g.Wait()
}

// openTransport connects to the driver. Background work the transport needs, such as the simulated
// arm or a bag replay, joins g.
func openTransport(
	ctx context.Context,
	cfg *config.Config,
	xml []byte,
	registry *referenceframe.Registry,
	g *errgroup.Group,
	logger logging.Logger,
) (transport.Conn, error) {
	switch cfg.Transport.Kind {
	case config.TransportRosbridge:
		return rosbridge.Dial(ctx, cfg.Transport.URL, logger)
	case config.TransportReplay:
		rb, err := ros.ReadBag(cfg.Transport.Bag)
		if err != nil {
			return nil, err
		}
		msgs, err := ros.BagMessages(rb, []string{
			ros.JointStatesTopic, ros.SchunkStatusTopic, ros.TFTopic, ros.TFStaticTopic,
		})
		if err != nil {
			return nil, err
		}
		logger.Infow("replaying bag", "path", cfg.Transport.Bag, "messages", len(msgs))
		bus := transport.NewBus(busBufferSize, logger)
		g.Go(func() error {
			return ignoreCanceled(transport.Replay(ctx, clock.New(), bus, msgs, cfg.Transport.Speed))
		})
		return bus, nil
	default:
		urdf, err := referenceframe.ParseURDF(xml)
		if err != nil {
			return nil, err
		}
		model, err := kinematics.NewModelFromURDF(urdf)
		if err != nil {
			return nil, err
		}
		bus := transport.NewBus(busBufferSize, logger)
		arm, err := sim.NewArm(model, registry.Names(), sim.Config{
			Speed:     cfg.Simulation.Speed,
			Frequency: cfg.Simulation.Frequency,
			Shuffle:   cfg.Simulation.Shuffle,
		}, bus, bus, nil, logger.Sublogger("sim"))
		if err != nil {
			return nil, err
		}
		if err := arm.Start(); err != nil {
			return nil, err
		}
		return &simConn{Bus: bus, arm: arm}, nil
	}
}

// simConn closes the simulated arm together with its bus.
type simConn struct {
	*transport.Bus
	arm *sim.Arm
}

func (c *simConn) Close() error {
	return multierr.Combine(c.arm.Close(), c.Bus.Close())
}

// loggerSet remembers the subloggers handed out so a changed log level reaches all of them.
type loggerSet struct {
	mu   sync.Mutex
	root logging.Logger
	subs []logging.Logger
}

func (s *loggerSet) sub(name string) logging.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.root.Sublogger(name)
	s.subs = append(s.subs, l)
	return l
}

func (s *loggerSet) apply(cfg logging.Config) {
	if cfg.Level == "" {
		return
	}
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		s.root.Warnw("ignoring log level", "level", cfg.Level, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.SetLevel(level)
	for _, l := range s.subs {
		l.SetLevel(level)
	}
	s.root.Infow("log level changed", "level", level)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

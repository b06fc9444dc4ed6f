// Package endeffector reports the pose of the tool frame relative to the arm's root frame.
package endeffector

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/framesystem"
	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/spatialmath"
)

// DefaultTimeout bounds how long a single pose poll waits for the transform chain.
const DefaultTimeout = 3 * time.Second

// ErrDisabled is returned when no root or tip frame was configured.
var ErrDisabled = errors.New("pose reporting disabled: root and tip frames are not both set")

// TransformLookup answers root to tip queries, waiting until ctx is done.
type TransformLookup interface {
	LookupTransform(ctx context.Context, root, tip string) (spatialmath.Transform, error)
}

// Config names the frames and the wait.
type Config struct {
	RootFrame string
	TipFrame  string
	Timeout   time.Duration
}

// Estimator polls the transform lookup for the end effector pose.
type Estimator struct {
	lookup TransformLookup
	cfg    Config
	clk    clock.Clock
	logger logging.Logger
}

// NewEstimator returns an estimator. A missing frame name is not an error: the estimator is built
// disabled and every poll reports ErrDisabled.
func NewEstimator(lookup TransformLookup, cfg Config, clk clock.Clock, logger logging.Logger) *Estimator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	e := &Estimator{lookup: lookup, cfg: cfg, clk: clk, logger: logger}
	if !e.Enabled() {
		logger.Warnw("root or tip frame not set, end effector pose will not be reported",
			"root", cfg.RootFrame, "tip", cfg.TipFrame)
	}
	return e
}

// Enabled reports whether both frames are configured.
func (e *Estimator) Enabled() bool {
	return e.lookup != nil && e.cfg.RootFrame != "" && e.cfg.TipFrame != ""
}

// Frames returns the configured root and tip.
func (e *Estimator) Frames() (string, string) {
	return e.cfg.RootFrame, e.cfg.TipFrame
}

// Pose looks up the tip in the root frame. On any failure it returns the zero pose together with
// the error, so callers can always display the result.
func (e *Estimator) Pose(ctx context.Context) (spatialmath.EndEffectorPose, error) {
	if !e.Enabled() {
		return spatialmath.ZeroEndEffectorPose(), ErrDisabled
	}
	ctx, cancel := e.clk.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	t, err := e.lookup.LookupTransform(ctx, e.cfg.RootFrame, e.cfg.TipFrame)
	if err != nil {
		if !errors.Is(err, framesystem.ErrTransformUnavailable) {
			err = errors.Wrapf(framesystem.ErrTransformUnavailable, "%s -> %s: %v", e.cfg.RootFrame, e.cfg.TipFrame, err)
		}
		e.logger.Debugw("end effector lookup failed", "error", err)
		return spatialmath.ZeroEndEffectorPose(), err
	}
	return spatialmath.NewEndEffectorPose(t), nil
}

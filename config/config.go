// Package config defines the structures to configure the console, the robot description it
// controls, and the transport it talks over.
package config

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/uu-controllers/schunkgui/logging"
)

// Defaults applied to fields left unset.
const (
	DefaultLoopRateHz       = 10
	DefaultTransformTimeout = 3 * time.Second
	DefaultEstopAckTimeout  = 2 * time.Second
	DefaultVelocityLimitDeg = 90
	DefaultHistoryLength    = 100
	DefaultHistoryFile      = "history"
	DefaultRosbridgeURL     = "ws://localhost:9090"

	maxLoopRateHz = 200
)

// Transport kinds.
const (
	TransportSim       = "sim"
	TransportRosbridge = "rosbridge"
	TransportReplay    = "replay"
)

// Display modes of the console.
const (
	ModeFull   = "full"
	ModeMedium = "medium"
	ModeMini   = "mini"
)

// Units of the operator inputs.
const (
	UnitsDegrees = "deg"
	UnitsRadians = "rad"
)

// DependentJoints is the set of joints driven by other joints. ROS parameter files store it either
// as a list of names or as a map from name to the joint it depends on; both decode to the names.
type DependentJoints []string

// UnmarshalJSON accepts a list of names or an object keyed by name.
func (d *DependentJoints) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = nil
	case []interface{}:
		var names []string
		if err := mapstructure.Decode(v, &names); err != nil {
			return errors.Wrap(err, "dependent_joints must be a list of names")
		}
		*d = names
	case map[string]interface{}:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		*d = names
	default:
		return errors.Errorf("dependent_joints must be a list or an object, got %T", raw)
	}
	return nil
}

// Transport selects how the console reaches the driver.
type Transport struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	// Bag is the recording to replay when Kind is "replay".
	Bag string `json:"bag,omitempty"`
	// Speed scales replay timing; 0 replays as fast as possible.
	Speed float64 `json:"speed,omitempty"`
}

// Simulation configures the simulated arm.
type Simulation struct {
	Speed     float64 `json:"speed,omitempty"`
	Frequency float64 `json:"frequency,omitempty"`
	Shuffle   bool    `json:"shuffle,omitempty"`
}

// Config is the console configuration file.
type Config struct {
	ConfigFilePath string `json:"-"`

	DescriptionPath string          `json:"description_path,omitempty"`
	Description     string          `json:"description,omitempty"`
	DependentJoints DependentJoints `json:"dependent_joints,omitempty"`
	RootFrame       string          `json:"root_frame,omitempty"`
	TipFrame        string          `json:"tip_frame,omitempty"`

	LoopRateHz       float64          `json:"loop_rate_hz,omitempty"`
	TransformTimeout goutils.Duration `json:"transform_timeout,omitempty"`
	EstopAckTimeout  goutils.Duration `json:"estop_ack_timeout,omitempty"`
	VelocityLimitDeg float64          `json:"velocity_limit_deg,omitempty"`
	Units            string           `json:"units,omitempty"`

	Mode          string `json:"mode,omitempty"`
	HistoryFile   string `json:"history_file,omitempty"`
	HistoryLength int    `json:"history_length,omitempty"`

	Transport  Transport      `json:"transport"`
	Simulation Simulation     `json:"simulation"`
	Log        logging.Config `json:"log"`
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if c.LoopRateHz == 0 {
		c.LoopRateHz = DefaultLoopRateHz
	}
	if c.TransformTimeout == 0 {
		c.TransformTimeout = goutils.Duration(DefaultTransformTimeout)
	}
	if c.EstopAckTimeout == 0 {
		c.EstopAckTimeout = goutils.Duration(DefaultEstopAckTimeout)
	}
	if c.VelocityLimitDeg == 0 {
		c.VelocityLimitDeg = DefaultVelocityLimitDeg
	}
	if c.Units == "" {
		c.Units = UnitsDegrees
	}
	if c.Mode == "" {
		c.Mode = ModeFull
	}
	if c.HistoryFile == "" {
		c.HistoryFile = DefaultHistoryFile
	}
	if c.HistoryLength == 0 {
		c.HistoryLength = DefaultHistoryLength
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportSim
	}
	if c.Transport.Kind == TransportRosbridge && c.Transport.URL == "" {
		c.Transport.URL = DefaultRosbridgeURL
	}
}

// Validate returns an error for any unusable setting. Missing pose frames are only warned about
// by the caller, see PoseEnabled.
func (c *Config) Validate() error {
	if c.DescriptionPath == "" && strings.TrimSpace(c.Description) == "" {
		return goutils.NewConfigValidationFieldRequiredError("", "description_path")
	}
	if c.DescriptionPath != "" && c.Description != "" {
		return goutils.NewConfigValidationError("", errors.New("set only one of description_path and description"))
	}
	if c.LoopRateHz <= 0 || c.LoopRateHz > maxLoopRateHz {
		return goutils.NewConfigValidationError("loop_rate_hz",
			errors.Errorf("must be within (0, %d], got %v", maxLoopRateHz, c.LoopRateHz))
	}
	if c.TransformTimeout < 0 || c.EstopAckTimeout < 0 {
		return goutils.NewConfigValidationError("", errors.New("timeouts cannot be negative"))
	}
	if c.VelocityLimitDeg < 0 {
		return goutils.NewConfigValidationError("velocity_limit_deg", errors.New("cannot be negative"))
	}
	switch c.Units {
	case UnitsDegrees, UnitsRadians:
	default:
		return goutils.NewConfigValidationError("units", errors.Errorf("unknown units %q", c.Units))
	}
	switch c.Mode {
	case ModeFull, ModeMedium, ModeMini:
	default:
		return goutils.NewConfigValidationError("mode", errors.Errorf("unknown mode %q", c.Mode))
	}
	if c.HistoryLength < 0 {
		return goutils.NewConfigValidationError("history_length", errors.New("cannot be negative"))
	}
	switch c.Transport.Kind {
	case TransportSim, TransportRosbridge:
	case TransportReplay:
		if c.Transport.Bag == "" {
			return goutils.NewConfigValidationFieldRequiredError("transport", "bag")
		}
	default:
		return goutils.NewConfigValidationError("transport.kind", errors.Errorf("unknown transport %q", c.Transport.Kind))
	}
	if c.Transport.Speed < 0 {
		return goutils.NewConfigValidationError("transport.speed", errors.New("cannot be negative"))
	}
	return c.Log.Validate("log")
}

// PoseEnabled reports whether both pose frames are set.
func (c *Config) PoseEnabled() bool {
	return c.RootFrame != "" && c.TipFrame != ""
}

// DescriptionXML returns the robot description, reading it from disk when given as a path.
func (c *Config) DescriptionXML() ([]byte, error) {
	if c.Description != "" {
		return []byte(c.Description), nil
	}
	//nolint:gosec
	data, err := os.ReadFile(c.DescriptionPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read robot description")
	}
	return data, nil
}

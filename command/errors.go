package command

import "github.com/pkg/errors"

var (
	// ErrUnknownModule is returned for a module token that is neither "all" nor a valid index.
	ErrUnknownModule = errors.New("module does not exist")
	// ErrOutOfRange is returned for a position outside the joint limits or a velocity outside the
	// velocity envelope.
	ErrOutOfRange = errors.New("value out of range")
	// ErrEmergencyStopped is returned for movement commands while the emergency stop is engaged.
	ErrEmergencyStopped = errors.New("emergency stop engaged")
	// ErrAckTimeout is returned when clearing the emergency stop and a joint acknowledge is not sent
	// in time.
	ErrAckTimeout = errors.New("timed out acknowledging joint")
	// ErrUnsupported is returned for a well formed request the driver has no topic for.
	ErrUnsupported = errors.New("unsupported")
	// ErrBadValue is returned for a value token that is not a number.
	ErrBadValue = errors.New("not a valid value")
)

// NewUnknownModuleError names the token that failed to address a module.
func NewUnknownModuleError(token string) error {
	return errors.Wrapf(ErrUnknownModule, "%q", token)
}

// NewOutOfRangeError reports value against its window in the same unit.
func NewOutOfRangeError(what string, value, lower, upper float64, unit string) error {
	return errors.Wrapf(ErrOutOfRange, "%s %.4g %s not in [%.4g, %.4g]", what, value, unit, lower, upper)
}

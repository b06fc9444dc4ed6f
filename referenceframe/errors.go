package referenceframe

import "github.com/pkg/errors"

var (
	// ErrMalformedDescription is returned when the description cannot be parsed or a movable joint
	// lacks usable limits.
	ErrMalformedDescription = errors.New("malformed robot description")
	// ErrNoJointsFound is returned when no joint survives filtering. Startup cannot continue.
	ErrNoJointsFound = errors.New("no controllable joints found in robot description")
)

// NewMissingLimitError is used when a non-continuous joint has no limit element.
func NewMissingLimitError(joint string) error {
	return errors.Wrapf(ErrMalformedDescription, "joint %q has no limit element", joint)
}

// ErrIndexOutOfRange is returned for a stable index outside 0..N-1.
var ErrIndexOutOfRange = errors.New("joint index out of range")

// NewIndexOutOfRangeError is used when an index does not name a registered joint.
func NewIndexOutOfRangeError(index, count int) error {
	return errors.Wrapf(ErrIndexOutOfRange, "index %d not in 0..%d", index, count-1)
}

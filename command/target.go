package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// AllToken addresses every module.
const AllToken = "all"

// Target is the addressing mode of a command: one stable index or every module.
type Target struct {
	All   bool
	Index int
}

// AllModules targets every module.
func AllModules() Target {
	return Target{All: true}
}

// Module targets one stable index.
func Module(index int) Target {
	return Target{Index: index}
}

func (t Target) String() string {
	if t.All {
		return AllToken
	}
	return strconv.Itoa(t.Index)
}

// ParseTarget reads a module token. An empty token addresses all modules. Anything else must be
// "all" or an integer in 0..count-1.
func ParseTarget(token string, count int) (Target, error) {
	token = strings.TrimSpace(token)
	if token == "" || token == AllToken {
		return AllModules(), nil
	}
	index, err := strconv.Atoi(token)
	if err != nil || index < 0 || index >= count {
		return Target{}, NewUnknownModuleError(token)
	}
	return Module(index), nil
}

// ParseValue reads an optional numeric token. It returns nil for an empty token so callers fall
// back to the panel input.
func ParseValue(token string) (*float64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	value, err := cast.ToFloat64E(token)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, errors.Wrapf(ErrBadValue, "%q", token)
	}
	return &value, nil
}

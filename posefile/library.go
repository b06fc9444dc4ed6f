package posefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

var (
	// ErrDuplicateName is returned when adding a vector under a name already in the library.
	ErrDuplicateName = errors.New("label already exists")
	// ErrEmptyName is returned when adding a vector without a name.
	ErrEmptyName = errors.New("label is empty")
	// ErrNotFound is returned for a name that is not in the library.
	ErrNotFound = errors.New("no joint vector with that name")
)

// uniquePrefix is the stem of generated names.
const uniquePrefix = "joints_angles_"

// Vector is one named set of joint values.
type Vector struct {
	Name   string
	Values []float64
}

// Placement says where Insert puts a new vector relative to an existing one.
type Placement int

// Insert positions.
const (
	AtEnd Placement = iota
	Before
	After
)

// Library is an ordered list of joint vectors with unique names.
type Library struct {
	vectors []Vector
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{}
}

// Len is the number of vectors.
func (l *Library) Len() int {
	return len(l.vectors)
}

// Names lists the vector names in order.
func (l *Library) Names() []string {
	return lo.Map(l.vectors, func(v Vector, _ int) string { return v.Name })
}

// Vectors returns a copy of every vector in order.
func (l *Library) Vectors() []Vector {
	return lo.Map(l.vectors, func(v Vector, _ int) Vector {
		return Vector{Name: v.Name, Values: append([]float64(nil), v.Values...)}
	})
}

func (l *Library) indexOf(name string) int {
	_, idx, ok := lo.FindIndexOf(l.vectors, func(v Vector) bool { return v.Name == name })
	if !ok {
		return -1
	}
	return idx
}

// Get returns the values stored under name.
func (l *Library) Get(name string) ([]float64, error) {
	idx := l.indexOf(name)
	if idx < 0 {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return append([]float64(nil), l.vectors[idx].Values...), nil
}

// Insert adds a vector at the end, or before or after the vector named anchor.
func (l *Library) Insert(name string, values []float64, where Placement, anchor string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if strings.Contains(name, ":") {
		return errors.Errorf("label %q cannot contain ':'", name)
	}
	if l.indexOf(name) >= 0 {
		return errors.Wrap(ErrDuplicateName, name)
	}
	at := len(l.vectors)
	if where != AtEnd {
		idx := l.indexOf(anchor)
		if idx < 0 {
			return errors.Wrap(ErrNotFound, anchor)
		}
		at = idx
		if where == After {
			at++
		}
	}
	v := Vector{Name: name, Values: append([]float64(nil), values...)}
	l.vectors = append(l.vectors, Vector{})
	copy(l.vectors[at+1:], l.vectors[at:])
	l.vectors[at] = v
	return nil
}

// Remove deletes the vector named name.
func (l *Library) Remove(name string) error {
	idx := l.indexOf(name)
	if idx < 0 {
		return errors.Wrap(ErrNotFound, name)
	}
	l.vectors = append(l.vectors[:idx], l.vectors[idx+1:]...)
	return nil
}

// UniqueName returns the first joints_angles_<n> not yet used.
func (l *Library) UniqueName() string {
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s%d", uniquePrefix, i)
		if l.indexOf(name) < 0 {
			return name
		}
	}
}

// Write stores the library, one "name:[v0, v1, ...]" line per vector.
func (l *Library) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range l.vectors {
		formatted := lo.Map(v.Values, func(f float64, _ int) string { return formatValue(f) })
		if _, err := fmt.Fprintf(bw, "%s:[%s]\n", v.Name, strings.Join(formatted, ", ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadLibrary parses a library. Blank lines are skipped; any malformed line fails the whole read.
func ReadLibrary(r io.Reader) (*Library, error) {
	l := NewLibrary()
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, list, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.Errorf("line %d: expected name:[values]", lineNum)
		}
		list = strings.TrimSpace(list)
		if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
			return nil, errors.Errorf("line %d: values must be a bracketed list", lineNum)
		}
		var values []float64
		if body := strings.TrimSpace(list[1 : len(list)-1]); body != "" {
			for _, token := range strings.Split(body, ",") {
				v, err := parseValue(token)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNum)
				}
				values = append(values, v)
			}
		}
		if err := l.Insert(name, values, AtEnd, ""); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// Save writes the library to path, replacing any existing file.
func (l *Library) Save(path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return l.Write(f)
}

// LoadLibrary reads a library file.
func LoadLibrary(path string) (*Library, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck
	defer f.Close()
	return ReadLibrary(f)
}

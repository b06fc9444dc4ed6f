// Package posefile reads and writes the operator's saved joint values: a single pose as one CSV
// row, and a named list of joint vectors with one "name:[v0, v1, ...]" line per entry.
package posefile

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// ErrBadValue is returned when a stored value is not a number.
var ErrBadValue = errors.New("bad joint value")

// WritePose writes values as one CSV row.
func WritePose(w io.Writer, values []float64) error {
	cw := csv.NewWriter(w)
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = formatValue(v)
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ReadPose reads the first row of a pose file and returns at most count values. A row shorter than
// count yields fewer values. Nothing is returned if any value fails to parse, so callers never
// apply half a pose.
func ReadPose(r io.Reader, count int) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	row, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("pose file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading pose")
	}
	n := len(row)
	if count < n {
		n = count
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := parseValue(row[i])
		if err != nil {
			return nil, errors.Wrapf(err, "pose column %d", i)
		}
		values[i] = v
	}
	return values, nil
}

// SavePose writes a pose file, replacing any existing one.
func SavePose(path string, values []float64) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePose(f, values)
}

// LoadPose reads a pose file. See ReadPose.
func LoadPose(path string, count int) ([]float64, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck
	defer f.Close()
	return ReadPose(f, count)
}

func parseValue(token string) (float64, error) {
	v, err := cast.ToFloat64E(strings.TrimSpace(token))
	if err != nil {
		return 0, errors.Wrapf(ErrBadValue, "%q", token)
	}
	return v, nil
}

// formatValue always keeps a decimal point: 30 is written as 30.0.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

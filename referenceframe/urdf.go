// Package referenceframe loads a robot description (URDF) and builds the stable joint index every
// other package addresses joints by.
package referenceframe

import (
	"encoding/xml"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/spatialmath"
)

// Joint types found in a URDF.
const (
	FixedJoint      = "fixed"
	RevoluteJoint   = "revolute"
	ContinuousJoint = "continuous"
	PrismaticJoint  = "prismatic"
)

// URDFConfig represents the fields of a Universal Robot Description Format document used here.
// Only top level joints and links are read, in document order.
type URDFConfig struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []URDFLink  `xml:"link"`
	Joints  []URDFJoint `xml:"joint"`
}

// URDFLink is a URDF link element. Geometry is not needed by the console.
type URDFLink struct {
	Name string `xml:"name,attr"`
}

// URDFLimit keeps the raw attribute text so a missing or garbled bound is reported instead of
// silently reading as zero. Revolute limits are radians, prismatic limits meters.
type URDFLimit struct {
	Lower    string `xml:"lower,attr"`
	Upper    string `xml:"upper,attr"`
	Velocity string `xml:"velocity,attr"`
	Effort   string `xml:"effort,attr"`
}

// URDFFrame names the link on one side of a joint.
type URDFFrame struct {
	Link string `xml:"link,attr"`
}

// URDFPose is an origin element: "x y z" in meters and fixed axis "r p y" in radians.
type URDFPose struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

// URDFAxis is a joint axis, "x y z".
type URDFAxis struct {
	XYZ string `xml:"xyz,attr"`
}

// URDFMimic makes a joint follow another: q = multiplier*q_source + offset.
type URDFMimic struct {
	Joint      string   `xml:"joint,attr"`
	Multiplier *float64 `xml:"multiplier,attr"`
	Offset     *float64 `xml:"offset,attr"`
}

// URDFJoint is a URDF joint element.
type URDFJoint struct {
	Name   string     `xml:"name,attr"`
	Type   string     `xml:"type,attr"`
	Parent URDFFrame  `xml:"parent"`
	Child  URDFFrame  `xml:"child"`
	Origin *URDFPose  `xml:"origin"`
	Axis   *URDFAxis  `xml:"axis"`
	Limit  *URDFLimit `xml:"limit"`
	Mimic  *URDFMimic `xml:"mimic"`
}

// ParseURDFFile reads and parses a description from disk.
func ParseURDFFile(filename string) (*URDFConfig, error) {
	//nolint:gosec
	xmlData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read URDF file")
	}
	return ParseURDF(xmlData)
}

// ParseURDF parses description XML. Empty or unparsable data is a malformed description.
func ParseURDF(xmlData []byte) (*URDFConfig, error) {
	if len(strings.TrimSpace(string(xmlData))) == 0 {
		return nil, errors.Wrap(ErrMalformedDescription, "empty description")
	}
	urdf := &URDFConfig{}
	if err := xml.Unmarshal(xmlData, urdf); err != nil {
		return nil, errors.Wrapf(ErrMalformedDescription, "%v", err)
	}
	return urdf, nil
}

// Bounds returns the parsed lower and upper limit. A missing or unparsable attribute is an error.
func (l *URDFLimit) Bounds() (float64, float64, error) {
	lower, err := strconv.ParseFloat(strings.TrimSpace(l.Lower), 64)
	if err != nil {
		return 0, 0, errors.Errorf("bad lower limit %q", l.Lower)
	}
	upper, err := strconv.ParseFloat(strings.TrimSpace(l.Upper), 64)
	if err != nil {
		return 0, 0, errors.Errorf("bad upper limit %q", l.Upper)
	}
	return lower, upper, nil
}

// Transform returns the origin as a rigid transform. A nil origin is the identity.
func (p *URDFPose) Transform() (spatialmath.Transform, error) {
	if p == nil {
		return spatialmath.NewZeroTransform(), nil
	}
	xyz, err := parseTriple(p.XYZ)
	if err != nil {
		return spatialmath.Transform{}, errors.Wrap(err, "origin xyz")
	}
	rpy, err := parseTriple(p.RPY)
	if err != nil {
		return spatialmath.Transform{}, errors.Wrap(err, "origin rpy")
	}
	return spatialmath.NewTransformFromXYZRPY(xyz, rpy), nil
}

// Vector returns the axis. URDF defaults a missing axis to x.
func (a *URDFAxis) Vector() ([3]float64, error) {
	if a == nil {
		return [3]float64{1, 0, 0}, nil
	}
	return parseTriple(a.XYZ)
}

// MultiplierOffset returns the mimic coefficients with the URDF defaults of 1 and 0.
func (m *URDFMimic) MultiplierOffset() (float64, float64) {
	multiplier, offset := 1.0, 0.0
	if m.Multiplier != nil {
		multiplier = *m.Multiplier
	}
	if m.Offset != nil {
		offset = *m.Offset
	}
	return multiplier, offset
}

// parseTriple splits a space delimited "a b c" attribute. An empty attribute is all zeros.
func parseTriple(s string) ([3]float64, error) {
	var out [3]float64
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return out, nil
	}
	if len(fields) != 3 {
		return out, errors.Errorf("expected 3 values, got %q", s)
	}
	for i, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(value) {
			return out, errors.Errorf("bad number %q in %q", field, s)
		}
		out[i] = value
	}
	return out, nil
}

// Package krl converts joint arrays to and from KRL axis aggregates, the
// textual form a KUKA controller uses for AXIS/E6AXIS variables:
//
//	{E6AXIS: A1 0.0, A2 -90.0, A3 90.0, A4 0.0, A5 0.0, A6 0.0, E1 0.0}
//
// Joint i maps to A1..A6 and then E1..E6 in order.
package krl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/kvpbridge/internal/joints"
)

// ErrMalformed reports an aggregate that cannot be decoded.
var ErrMalformed = errors.New("krl: malformed aggregate")

// Units selects the angular unit used on the controller side.
type Units string

const (
	Degrees Units = "deg"
	Radians Units = "rad"
)

// AxisKey returns the KRL component name for joint index i.
func AxisKey(i int) string {
	if i < 6 {
		return "A" + strconv.Itoa(i+1)
	}
	return "E" + strconv.Itoa(i-5)
}

// Codec encodes command positions and decodes state positions. The bridge
// stores radians; the controller side uses Units.
type Codec struct {
	// Type is the aggregate type written with commands, e.g. "E6AXIS".
	Type  string
	Units Units
}

// NewCodec validates the type and units.
func NewCodec(typ string, units Units) (*Codec, error) {
	typ = strings.ToUpper(strings.TrimSpace(typ))
	if typ == "" {
		typ = "E6AXIS"
	}
	switch units {
	case "":
		units = Degrees
	case Degrees, Radians:
	default:
		return nil, fmt.Errorf("unsupported units %q: expected deg or rad", units)
	}
	return &Codec{Type: typ, Units: units}, nil
}

func (c *Codec) toWire(v float64) float64 {
	if c.Units == Degrees {
		return v * 180 / math.Pi
	}
	return v
}

func (c *Codec) fromWire(v float64) float64 {
	if c.Units == Degrees {
		return v * math.Pi / 180
	}
	return v
}

// DecodeState parses raw into dst.Position. Velocity and effort are not
// carried by KRL aggregates and are left untouched. On error dst is not
// modified.
func (c *Codec) DecodeState(raw string, dst *joints.JointSet) error {
	fields, err := Parse(raw)
	if err != nil {
		return err
	}
	pos := make([]float64, dst.Len())
	for i := range pos {
		key := AxisKey(i)
		v, ok := fields[key]
		if !ok {
			return fmt.Errorf("%w: missing %s for joint %q", ErrMalformed, key, dst.Names[i])
		}
		pos[i] = c.fromWire(v)
	}
	copy(dst.Position, pos)
	return nil
}

// EncodeCommand renders src.Position as an aggregate of c.Type.
func (c *Codec) EncodeCommand(src *joints.JointSet) (string, error) {
	var b strings.Builder
	b.WriteString("{")
	b.WriteString(c.Type)
	b.WriteString(":")
	for i, p := range src.Position {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return "", fmt.Errorf("joint %q has non-finite command %v", src.Names[i], p)
		}
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(" ")
		b.WriteString(AxisKey(i))
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(c.toWire(p), 'f', 6, 64))
	}
	b.WriteString("}")
	return b.String(), nil
}

// Parse splits an aggregate into its named real components. The type prefix
// is optional; non-numeric components are skipped.
func Parse(raw string) (map[string]float64, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	s = s[1 : len(s)-1]
	if colon := strings.IndexByte(s, ':'); colon >= 0 {
		s = s[colon+1:]
	}

	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, " ")
		if !ok {
			return nil, fmt.Errorf("%w: component %q has no value", ErrMalformed, part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		out[strings.ToUpper(name)] = v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no numeric components in %q", ErrMalformed, raw)
	}
	return out, nil
}

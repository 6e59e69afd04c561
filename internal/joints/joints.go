// Package joints holds the index-aligned joint arrays shared between the
// control loop and the cycle workers.
package joints

import (
	"errors"
	"fmt"
)

// MaxJoints bounds the joint count to the axes a KRL E6AXIS aggregate can
// carry (A1..A6 plus E1..E6).
const MaxJoints = 12

var (
	ErrNoJoints       = errors.New("joint list is empty")
	ErrTooManyJoints  = fmt.Errorf("more than %d joints", MaxJoints)
	ErrDuplicateJoint = errors.New("duplicate joint name")
	ErrUnknownJoint   = errors.New("unknown joint")
)

// JointSet is three value arrays (position, velocity, effort) index-aligned
// to a fixed, ordered list of joint names. The length never changes after
// construction.
type JointSet struct {
	Names    []string
	Position []float64
	Velocity []float64
	Effort   []float64

	index map[string]int
}

// New allocates a zeroed JointSet for the given names.
func New(names []string) (*JointSet, error) {
	if err := ValidateNames(names); err != nil {
		return nil, err
	}
	n := len(names)
	js := &JointSet{
		Names:    append([]string(nil), names...),
		Position: make([]float64, n),
		Velocity: make([]float64, n),
		Effort:   make([]float64, n),
		index:    make(map[string]int, n),
	}
	for i, name := range names {
		js.index[name] = i
	}
	return js, nil
}

// ValidateNames checks that names is a usable joint list.
func ValidateNames(names []string) error {
	if len(names) == 0 {
		return ErrNoJoints
	}
	if len(names) > MaxJoints {
		return fmt.Errorf("%w: got %d", ErrTooManyJoints, len(names))
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return errors.New("joint name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateJoint, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Len returns the number of joints.
func (js *JointSet) Len() int { return len(js.Names) }

// Index returns the array index of the named joint.
func (js *JointSet) Index(name string) (int, error) {
	i, ok := js.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownJoint, name)
	}
	return i, nil
}

// CopyFrom copies the values of src into js without reallocating. Both sets
// must have the same length.
func (js *JointSet) CopyFrom(src *JointSet) {
	copy(js.Position, src.Position)
	copy(js.Velocity, src.Velocity)
	copy(js.Effort, src.Effort)
}

// Clone returns a deep copy.
func (js *JointSet) Clone() JointSet {
	c := JointSet{
		Names:    js.Names,
		Position: append([]float64(nil), js.Position...),
		Velocity: append([]float64(nil), js.Velocity...),
		Effort:   append([]float64(nil), js.Effort...),
		index:    js.index,
	}
	return c
}

package endpoint

import (
	"fmt"
	"strings"
	"time"
)

// Defaults used by Normalize for unset fields.
const (
	DefaultReadVariable  = "$AXIS_ACT"
	DefaultWriteVariable = "MYAXIS"
	DefaultDialTimeout   = 2 * time.Second
	DefaultIOTimeout     = 250 * time.Millisecond
)

// Options describes how to reach the remote controller and which variables
// carry state and commands. Options are immutable once a connection is made.
type Options struct {
	Address       string        `json:"address" yaml:"address"`
	ReadVariable  string        `json:"read_variable" yaml:"read_variable"`
	WriteVariable string        `json:"write_variable" yaml:"write_variable"`
	DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	// IOTimeout bounds each per-cycle read or write. Zero means unbounded;
	// use a negative value through Normalize to request the default.
	IOTimeout time.Duration `json:"io_timeout" yaml:"io_timeout"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o Options) Normalize() (Options, error) {
	opts := o
	opts.Address = strings.TrimSpace(opts.Address)
	if opts.Address == "" {
		return opts, fmt.Errorf("endpoint address is required")
	}
	if _, err := Scheme(opts.Address); err != nil {
		return opts, err
	}

	opts.ReadVariable = strings.TrimSpace(opts.ReadVariable)
	if opts.ReadVariable == "" {
		opts.ReadVariable = DefaultReadVariable
	}
	opts.WriteVariable = strings.TrimSpace(opts.WriteVariable)
	if opts.WriteVariable == "" {
		opts.WriteVariable = DefaultWriteVariable
	}
	if opts.ReadVariable == opts.WriteVariable {
		return opts, fmt.Errorf("read and write variable must differ, both are %q", opts.ReadVariable)
	}

	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.IOTimeout < 0 {
		opts.IOTimeout = DefaultIOTimeout
	}
	return opts, nil
}

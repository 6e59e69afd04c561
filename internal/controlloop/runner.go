// Package controlloop drives a hardware interface at a fixed rate, standing
// in for an external real-time scheduler.
package controlloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/kvpbridge/internal/hwinterface"
	"github.com/banshee-data/kvpbridge/internal/joints"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
	"github.com/banshee-data/kvpbridge/internal/timeutil"
)

// Interface is the read-then-write contract the loop drives.
type Interface interface {
	Read() (joints.JointSet, error)
	Write()
	Command() *joints.JointSet
	JointNames() []string
}

// Controller computes the next command from the latest state. It runs on
// the loop goroutine between Read and Write, the only window in which the
// command array may be modified.
type Controller interface {
	Update(now time.Time, period time.Duration, state joints.JointSet, command *joints.JointSet)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(now time.Time, period time.Duration, state joints.JointSet, command *joints.JointSet)

// Update calls f.
func (f ControllerFunc) Update(now time.Time, period time.Duration, state joints.JointSet, command *joints.JointSet) {
	f(now, period, state, command)
}

// Options configures a Runner.
type Options struct {
	Period     time.Duration
	Clock      timeutil.Clock
	Controller Controller
}

// Stats summarises a Runner's progress.
type Stats struct {
	Cycles   uint64 `json:"cycles"`
	Overruns uint64 `json:"overruns"`
	Errors   uint64 `json:"errors"`
}

// Runner ticks at a fixed period. Each tick runs one Read, the optional
// Controller, any staged position targets, then Write. A cycle that
// outlasts the period causes the missed ticks to be dropped, never queued.
type Runner struct {
	hw     Interface
	opts   Options
	clock  timeutil.Clock
	names  []string
	lookup *joints.JointSet

	mu      sync.Mutex
	staged  map[int]float64
	state   joints.JointSet
	command joints.JointSet
	hasData bool
	stats   Stats
}

// New creates a Runner for hw. The period must be positive.
func New(hw Interface, opts Options) (*Runner, error) {
	if opts.Period <= 0 {
		return nil, fmt.Errorf("controlloop: period must be positive, got %v", opts.Period)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	names := hw.JointNames()
	lookup, err := joints.New(names)
	if err != nil {
		return nil, err
	}
	return &Runner{
		hw:     hw,
		opts:   opts,
		clock:  clock,
		names:  names,
		lookup: lookup,
		staged: make(map[int]float64),
	}, nil
}

// Stage records position targets by joint name. They are applied to the
// command array by the loop goroutine after the next Read, so callers on
// other goroutines never touch the shared arrays.
func (r *Runner) Stage(targets map[string]float64) error {
	idx := make(map[int]float64, len(targets))
	for name, v := range targets {
		i, err := r.lookup.Index(name)
		if err != nil {
			return err
		}
		idx[i] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range idx {
		r.staged[i] = v
	}
	return nil
}

// Latest returns copies of the state and command as of the last completed
// cycle. ok is false until a cycle has completed.
func (r *Runner) Latest() (state, command joints.JointSet, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasData {
		return joints.JointSet{}, joints.JointSet{}, false
	}
	return r.state.Clone(), r.command.Clone(), true
}

// Stats returns the current counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run loops until ctx is done or the interface reports that it has been
// disconnected. It returns nil on context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.opts.Period)
	defer ticker.Stop()

	monitoring.Logf("[loop] running %d joints every %v", len(r.names), r.opts.Period)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[loop] stopped after %d cycles", r.Stats().Cycles)
			return nil
		case <-ticker.C():
		}
		if err := r.Step(); err != nil {
			return err
		}
	}
}

// Step runs a single cycle. It returns an error only when the interface can
// no longer cycle.
func (r *Runner) Step() error {
	start := r.clock.Now()
	state, err := r.hw.Read()
	if err != nil {
		r.mu.Lock()
		r.stats.Errors++
		r.mu.Unlock()
		if errors.Is(err, hwinterface.ErrShutdown) || errors.Is(err, hwinterface.ErrNotConnected) {
			return err
		}
		monitoring.Logf("[loop] read: %v", err)
		return nil
	}

	cmd := r.hw.Command()
	if r.opts.Controller != nil {
		r.opts.Controller.Update(start, r.opts.Period, state, cmd)
	}

	r.mu.Lock()
	for i, v := range r.staged {
		cmd.Position[i] = v
	}
	clear(r.staged)
	r.state = state
	r.command = cmd.Clone()
	r.hasData = true
	r.stats.Cycles++
	overrun := r.clock.Since(start) > r.opts.Period
	if overrun {
		r.stats.Overruns++
	}
	cycles, overruns := r.stats.Cycles, r.stats.Overruns
	r.mu.Unlock()

	r.hw.Write()
	if overrun && (overruns == 1 || overruns%100 == 0) {
		monitoring.Logf("[loop] cycle %d overran the %v period (%d overruns)", cycles, r.opts.Period, overruns)
	}
	return nil
}

// Package hwinterface bridges a fixed-rate control loop to a remote robot
// controller. Each call to Read drives exactly one synchronized exchange: a
// state read on one connection and a command write on another, performed in
// parallel by two worker goroutines that are held in lock-step with the
// caller by a cyclegate.Gate.
//
// The caller contract is:
//
//	hw.Connect(ctx)
//	for each tick {
//		state, _ := hw.Read() // performs both the read and the write
//		... update hw.Command() ...
//		hw.Write()            // no-op, the write already happened
//	}
//	hw.Disconnect()
//
// Read, Write and any mutation of Command must come from one goroutine.
package hwinterface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/kvpbridge/internal/cyclegate"
	"github.com/banshee-data/kvpbridge/internal/diagnostics"
	"github.com/banshee-data/kvpbridge/internal/endpoint"
	"github.com/banshee-data/kvpbridge/internal/joints"
	"github.com/banshee-data/kvpbridge/internal/metrics"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
	"github.com/banshee-data/kvpbridge/internal/timeutil"
)

// Codec converts between remote variable values and joint arrays.
type Codec interface {
	DecodeState(raw string, dst *joints.JointSet) error
	EncodeCommand(src *joints.JointSet) (string, error)
}

// Options configures a HardwareInterface.
type Options struct {
	Endpoint endpoint.Options
	Dialer   endpoint.Dialer
	Codec    Codec

	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Diagnostics and Metrics are optional.
	Diagnostics *diagnostics.Publisher
	Metrics     *metrics.Metrics

	// SeedCommand withholds command writes after Connect until a state read
	// succeeds, then copies the measured positions into every joint the
	// caller has not changed since Connect, so the arm holds still instead of
	// being driven toward zero. By default the command array is written
	// every cycle from the first.
	SeedCommand bool
}

// HardwareInterface owns the shared joint arrays, the two remote
// connections and the worker goroutines.
type HardwareInterface struct {
	opts  Options
	clock timeutil.Clock

	state   *joints.JointSet
	command *joints.JointSet
	scratch *joints.JointSet

	// lifecycle serialises Connect and Disconnect end to end.
	lifecycle sync.Mutex
	mu        sync.Mutex
	sess      *session

	cycle atomic.Uint64
	armed bool
	// seedBase is the command as of Connect; joints still equal to it are
	// seeded from the first good state.
	seedBase []float64
}

// New allocates the joint arrays for names. No connection is made.
func New(names []string, opts Options) (*HardwareInterface, error) {
	ep, err := opts.Endpoint.Normalize()
	if err != nil {
		return nil, err
	}
	opts.Endpoint = ep
	if opts.Dialer == nil {
		return nil, errors.New("hwinterface: dialer is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("hwinterface: codec is required")
	}

	state, err := joints.New(names)
	if err != nil {
		return nil, err
	}
	command := state.Clone()
	scratch := state.Clone()

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &HardwareInterface{
		opts:    opts,
		clock:   clock,
		state:   state,
		command: &command,
		scratch: &scratch,
	}, nil
}

// Connect opens the read-side and write-side connections and starts both
// workers. It returns once both workers are running; no cycle has run yet.
// A failure to open either connection returns a *ConnectionError and leaves
// nothing running. Connect on a connected interface fails fast.
func (h *HardwareInterface) Connect(ctx context.Context) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if h.Connected() {
		return ErrAlreadyConnected
	}

	addr := h.opts.Endpoint.Address
	dctx, cancel := context.WithTimeout(ctx, h.opts.Endpoint.DialTimeout)
	defer cancel()

	readConn, err := h.opts.Dialer.Dial(dctx, addr)
	if err != nil {
		return &ConnectionError{Side: "read", Address: addr, Err: err}
	}
	writeConn, err := h.opts.Dialer.Dial(dctx, addr)
	if err != nil {
		if cerr := readConn.Close(); cerr != nil {
			monitoring.Logf("[kvp] closing read connection after failed connect: %v", cerr)
		}
		return &ConnectionError{Side: "write", Address: addr, Err: err}
	}

	s := &session{
		id:        uuid.NewString(),
		readConn:  readConn,
		writeConn: writeConn,
		gate:      cyclegate.New(),
		stopCh:    make(chan struct{}),
		reader:    &worker{op: metrics.OpRead, metrics: h.opts.Metrics},
		writer:    &worker{op: metrics.OpWrite, metrics: h.opts.Metrics},
	}
	h.armed = !h.opts.SeedCommand
	h.seedBase = append(h.seedBase[:0], h.command.Position...)

	s.started.Add(2)
	s.wg.Add(2)
	go h.readLoop(s)
	go h.writeLoop(s)
	s.started.Wait()

	h.mu.Lock()
	h.sess = s
	h.mu.Unlock()

	h.opts.Metrics.SetConnected(true)
	monitoring.Logf("[kvp] connected to %s (session %s, read %q, write %q)",
		addr, s.id, h.opts.Endpoint.ReadVariable, h.opts.Endpoint.WriteVariable)
	return nil
}

// Disconnect stops the workers and closes both connections. Workers blocked
// on the gate or inside a remote request are released, so Disconnect returns
// promptly even mid-cycle. It is a no-op when not connected.
func (h *HardwareInterface) Disconnect() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	s := h.sess
	h.sess = nil
	h.mu.Unlock()
	if s == nil {
		return nil
	}

	s.stop.Store(true)
	close(s.stopCh)
	s.gate.Break()
	s.wg.Wait()

	err := errors.Join(s.readConn.Close(), s.writeConn.Close())
	h.opts.Metrics.SetConnected(false)
	monitoring.Logf("[kvp] disconnected session %s after %d cycles", s.id, h.cycle.Load())
	if err != nil {
		return fmt.Errorf("closing connections: %w", err)
	}
	return nil
}

// Close implements io.Closer.
func (h *HardwareInterface) Close() error { return h.Disconnect() }

// Read runs one cycle: it releases both workers, waits until the state read
// and command write have both finished (successfully or not), and returns a
// copy of the state. A failed remote read leaves the previous state in place;
// the failure is reported through diagnostics, not returned.
func (h *HardwareInterface) Read() (joints.JointSet, error) {
	h.mu.Lock()
	s := h.sess
	h.mu.Unlock()
	if s == nil {
		return joints.JointSet{}, ErrNotConnected
	}

	start := h.clock.Now()
	s.cycle = h.cycle.Add(1)
	if !s.gate.Start.Wait() {
		return joints.JointSet{}, ErrShutdown
	}
	if !s.gate.Done.Wait() {
		return joints.JointSet{}, ErrShutdown
	}
	elapsed := h.clock.Since(start)

	rep := s.report
	if !h.armed && rep.readErr == nil {
		seeded := h.seed()
		h.armed = true
		monitoring.Logf("[kvp] %d of %d command joints seeded from measured state, writes enabled",
			seeded, h.command.Len())
	}

	h.opts.Metrics.ObserveCycle(elapsed)
	h.opts.Diagnostics.Publish(rep.status(s.id, s.cycle, h.clock.Now(), elapsed))
	return h.state.Clone(), nil
}

// seed copies measured positions into the command joints left untouched
// since Connect and returns how many were copied.
func (h *HardwareInterface) seed() int {
	n := 0
	for i, p := range h.command.Position {
		if p == h.seedBase[i] {
			h.command.Position[i] = h.state.Position[i]
			n++
		}
	}
	return n
}

// Write is a no-op. The command write for this cycle already happened inside
// Read; Write exists to satisfy the read-then-write contract of the control
// loop and is safe in any state.
func (h *HardwareInterface) Write() {}

// State returns the live state array. Only read it between cycles.
func (h *HardwareInterface) State() *joints.JointSet { return h.state }

// Command returns the live command array. Only modify it between the return
// of one Read and the start of the next.
func (h *HardwareInterface) Command() *joints.JointSet { return h.command }

// StateHandle resolves a read handle for the named joint's state.
func (h *HardwareInterface) StateHandle(name string) (joints.StateHandle, error) {
	return h.state.StateHandle(name)
}

// CommandHandle resolves a position command handle for the named joint.
func (h *HardwareInterface) CommandHandle(name string) (joints.CommandHandle, error) {
	return h.command.CommandHandle(name)
}

// JointNames returns the ordered joint names.
func (h *HardwareInterface) JointNames() []string {
	return append([]string(nil), h.state.Names...)
}

// Connected reports whether a session is live.
func (h *HardwareInterface) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess != nil
}

// Session returns the id of the live session, or "".
func (h *HardwareInterface) Session() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return ""
	}
	return h.sess.id
}

// Cycle returns the number of cycles started since construction.
func (h *HardwareInterface) Cycle() uint64 { return h.cycle.Load() }

// Endpoint returns the normalized endpoint options.
func (h *HardwareInterface) Endpoint() endpoint.Options { return h.opts.Endpoint }

// session is everything created by one Connect and torn down by the
// matching Disconnect.
type session struct {
	id        string
	readConn  endpoint.Client
	writeConn endpoint.Client
	gate      *cyclegate.Gate

	stop    atomic.Bool
	stopCh  chan struct{}
	started sync.WaitGroup
	wg      sync.WaitGroup

	reader *worker
	writer *worker

	// cycle and report are handed between the control thread and the
	// workers through the gate and need no lock.
	cycle  uint64
	report cycleReport
}

type cycleReport struct {
	readErr      error
	writeErr     error
	writeSkipped bool
	readLatency  time.Duration
	writeLatency time.Duration
}

func (r cycleReport) status(session string, cycle uint64, now time.Time, elapsed time.Duration) diagnostics.Status {
	st := diagnostics.Status{
		Session:      session,
		Cycle:        cycle,
		Time:         now,
		ReadOK:       r.readErr == nil,
		WriteOK:      r.writeErr == nil,
		WriteSkipped: r.writeSkipped,
		ReadLatency:  r.readLatency,
		WriteLatency: r.writeLatency,
		CycleTime:    elapsed,
	}
	if r.readErr != nil {
		st.ReadError = r.readErr.Error()
	}
	if r.writeErr != nil {
		st.WriteError = r.writeErr.Error()
	}
	return st
}

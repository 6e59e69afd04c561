package endpoint

import (
	"context"
	"sync"
	"time"
)

// SimScheme is the address scheme served by Simulator.
const SimScheme = "sim"

// Simulator is an in-process stand-in for a robot controller. It stores
// named variables and, for each mirrored pair, copies whatever is written to
// the command variable into the state variable, so the simulated arm always
// reaches its commanded axis values within one cycle.
type Simulator struct {
	mu      sync.Mutex
	vars    map[string]string
	mirror  map[string]string
	latency time.Duration
	dials   int
}

// NewSimulator returns an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		vars:   make(map[string]string),
		mirror: make(map[string]string),
	}
}

// Set stores a variable value directly.
func (s *Simulator) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Get returns a variable value and whether it exists.
func (s *Simulator) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

// Mirror makes writes to command also update state.
func (s *Simulator) Mirror(command, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror[command] = state
}

// SetLatency delays every request by d.
func (s *Simulator) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Dials returns how many connections have been opened.
func (s *Simulator) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Dial opens a new connection to the simulator. The address is ignored
// beyond its scheme.
func (s *Simulator) Dial(ctx context.Context, address string) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.dials++
	s.mu.Unlock()
	return &simClient{sim: s, done: make(chan struct{})}, nil
}

type simClient struct {
	sim       *Simulator
	closeOnce sync.Once
	done      chan struct{}
}

func (c *simClient) wait(ctx context.Context) error {
	c.sim.mu.Lock()
	d := c.sim.latency
	c.sim.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *simClient) ReadVariable(ctx context.Context, name string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	v, ok := c.sim.Get(name)
	if !ok {
		return "", ErrNoSuchVariable
	}
	return v, nil
}

func (c *simClient) WriteVariable(ctx context.Context, name, value string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.sim.vars[name] = value
	if state, ok := c.sim.mirror[name]; ok {
		c.sim.vars[state] = value
	}
	return nil
}

func (c *simClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Package cyclegate provides the rendezvous barriers that put the control
// thread and the two I/O workers in lock-step, one cycle at a time.
//
// Each cycle is two rendezvous. The control thread arriving at Start
// releases both workers into their I/O; all three then meet at Done before
// the control thread may return. Because the control thread cannot reach
// Start for cycle n+1 until Done for cycle n has released, cycles are
// totally ordered and the shared joint arrays need no further locking.
package cyclegate

import "sync"

// Parties is the number of participants per cycle: the read worker, the
// write worker and the control thread.
const Parties = 3

// Barrier releases all waiters once a fixed number of parties have arrived,
// then resets for the next generation. Break releases every current and
// future waiter regardless of arrivals.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	generation uint64
	broken     bool
}

// NewBarrier returns a barrier for n parties. It panics if n < 1.
func NewBarrier(n int) *Barrier {
	if n < 1 {
		panic("cyclegate: barrier needs at least one party")
	}
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all parties have arrived or the barrier is broken. It
// reports false when the release was caused by Break.
func (b *Barrier) Wait() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		return false
	}
	gen := b.generation
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return true
	}
	for gen == b.generation && !b.broken {
		b.cond.Wait()
	}
	// A generation that completed before Break still counts as released.
	return gen != b.generation
}

// Break releases all waiters and makes every later Wait return immediately.
// Calling it more than once is harmless.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return
	}
	b.broken = true
	b.cond.Broadcast()
}

// Broken reports whether Break has been called.
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}

// Arrived returns the number of parties waiting in the current generation.
func (b *Barrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

// Generation returns how many times the barrier has released normally.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Gate is the start/done barrier pair for one connection session.
type Gate struct {
	Start *Barrier
	Done  *Barrier
}

// New returns a Gate sized for Parties participants.
func New() *Gate {
	return &Gate{
		Start: NewBarrier(Parties),
		Done:  NewBarrier(Parties),
	}
}

// Break force-releases both barriers. Workers blocked on Start and the
// control thread blocked on Done all return false.
func (g *Gate) Break() {
	g.Start.Break()
	g.Done.Break()
}

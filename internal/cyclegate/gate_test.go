package cyclegate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timed out after %v waiting for barrier parties", d)
	}
}

func TestBarrier_ReleasesOnLastArrival(t *testing.T) {
	b := NewBarrier(3)
	var released atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Wait() {
				released.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return b.Arrived() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), released.Load(), "no party may pass before the last arrives")

	assert.True(t, b.Wait())
	waitTimeout(t, &wg, time.Second)
	assert.Equal(t, int32(2), released.Load())
	assert.Equal(t, uint64(1), b.Generation())
	assert.Equal(t, 0, b.Arrived())
}

func TestBarrier_Reusable(t *testing.T) {
	b := NewBarrier(2)
	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			b.Wait()
		}
	}()
	for i := 0; i < rounds; i++ {
		require.True(t, b.Wait())
	}
	waitTimeout(t, &wg, time.Second)
	assert.Equal(t, uint64(rounds), b.Generation())
}

func TestBarrier_BreakReleasesWaiters(t *testing.T) {
	b := NewBarrier(3)
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- b.Wait() }()
	}
	require.Eventually(t, func() bool { return b.Arrived() == 2 }, time.Second, time.Millisecond)

	b.Break()
	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			assert.False(t, ok, "broken wait must report false")
		case <-time.After(time.Second):
			t.Fatal("Break did not release waiter")
		}
	}
	assert.True(t, b.Broken())
	assert.False(t, b.Wait(), "wait after break returns immediately")
	b.Break()
}

func TestBarrier_PanicsOnZeroParties(t *testing.T) {
	assert.Panics(t, func() { NewBarrier(0) })
}

// Three parties running many cycles: no party may start cycle n+1 until all
// have finished cycle n.
func TestGate_CyclesAreTotallyOrdered(t *testing.T) {
	g := New()
	const cycles = 200
	var (
		mu        sync.Mutex
		inCycle   = map[int]int{}
		violation bool
	)
	enter := func(n int) {
		mu.Lock()
		defer mu.Unlock()
		if inCycle[n-1] != 0 {
			violation = true
		}
		inCycle[n]++
	}
	leave := func(n int) {
		mu.Lock()
		defer mu.Unlock()
		inCycle[n]--
	}

	worker := func(wg *sync.WaitGroup) {
		defer wg.Done()
		for n := 1; ; n++ {
			if !g.Start.Wait() {
				return
			}
			enter(n)
			leave(n)
			g.Done.Wait()
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go worker(&wg)
	go worker(&wg)

	for n := 1; n <= cycles; n++ {
		require.True(t, g.Start.Wait())
		require.True(t, g.Done.Wait())
	}
	g.Break()
	waitTimeout(t, &wg, time.Second)

	assert.False(t, violation, "a party entered cycle n+1 while cycle n was open")
	assert.Equal(t, uint64(cycles), g.Done.Generation())
}

func TestGate_BreakUnblocksControlThread(t *testing.T) {
	g := New()
	done := make(chan bool, 1)
	go func() { done <- g.Done.Wait() }()
	require.Eventually(t, func() bool { return g.Done.Arrived() == 1 }, time.Second, time.Millisecond)
	g.Break()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("control thread still blocked after Break")
	}
	assert.True(t, g.Start.Broken())
}

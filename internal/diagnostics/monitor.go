package diagnostics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of recent cycle times kept for statistics.
const DefaultWindow = 512

// LatencySummary summarises recent cycle times in milliseconds.
type LatencySummary struct {
	Samples  int     `json:"samples"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// Snapshot is a point-in-time copy of the monitor's view.
type Snapshot struct {
	Last                *Status        `json:"last,omitempty"`
	Cycles              uint64         `json:"cycles"`
	ReadFailures        uint64         `json:"read_failures"`
	WriteFailures       uint64         `json:"write_failures"`
	ConsecutiveFailures uint64         `json:"consecutive_failures"`
	LastFailure         *Status        `json:"last_failure,omitempty"`
	Latency             LatencySummary `json:"latency"`
}

// Monitor is a Sink that keeps counters, the latest status and a rolling
// window of cycle times.
type Monitor struct {
	mu          sync.Mutex
	last        *Status
	lastFailure *Status
	cycles      uint64
	readFail    uint64
	writeFail   uint64
	consecutive uint64

	window []float64
	pos    int
	full   bool
}

// NewMonitor returns a monitor keeping the last n cycle times.
func NewMonitor(n int) *Monitor {
	if n <= 0 {
		n = DefaultWindow
	}
	return &Monitor{window: make([]float64, n)}
}

// Handle folds one status into the monitor.
func (m *Monitor) Handle(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycles++
	if !s.ReadOK {
		m.readFail++
	}
	if !s.WriteOK {
		m.writeFail++
	}
	if s.OK() {
		m.consecutive = 0
	} else {
		m.consecutive++
		f := s
		m.lastFailure = &f
	}
	m.last = &s

	m.window[m.pos] = float64(s.CycleTime) / float64(time.Millisecond)
	m.pos++
	if m.pos == len(m.window) {
		m.pos = 0
		m.full = true
	}
}

// Snapshot returns a copy of the current counters and latency summary.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		Cycles:              m.cycles,
		ReadFailures:        m.readFail,
		WriteFailures:       m.writeFail,
		ConsecutiveFailures: m.consecutive,
	}
	if m.last != nil {
		last := *m.last
		snap.Last = &last
	}
	if m.lastFailure != nil {
		lf := *m.lastFailure
		snap.LastFailure = &lf
	}
	n := m.pos
	if m.full {
		n = len(m.window)
	}
	samples := make([]float64, n)
	copy(samples, m.window[:n])
	m.mu.Unlock()

	snap.Latency = summarise(samples)
	return snap
}

func summarise(x []float64) LatencySummary {
	if len(x) == 0 {
		return LatencySummary{}
	}
	sort.Float64s(x)
	s := LatencySummary{
		Samples: len(x),
		MeanMs:  stat.Mean(x, nil),
		P50Ms:   stat.Quantile(0.5, stat.Empirical, x, nil),
		P99Ms:   stat.Quantile(0.99, stat.Empirical, x, nil),
		MaxMs:   floats.Max(x),
	}
	if len(x) > 1 {
		s.StdDevMs = stat.StdDev(x, nil)
	}
	return s
}

// Package diagnostics carries the best-effort, once-per-cycle status stream
// of the bridge and the sinks that consume it: the log, an in-memory monitor
// served over HTTP, and the gRPC health service.
package diagnostics

import (
	"fmt"
	"strings"
	"time"
)

// Status describes the outcome of one cycle.
type Status struct {
	Session      string        `json:"session"`
	Cycle        uint64        `json:"cycle"`
	Time         time.Time     `json:"time"`
	ReadOK       bool          `json:"read_ok"`
	WriteOK      bool          `json:"write_ok"`
	ReadError    string        `json:"read_error,omitempty"`
	WriteError   string        `json:"write_error,omitempty"`
	WriteSkipped bool          `json:"write_skipped,omitempty"`
	ReadLatency  time.Duration `json:"read_latency_ns"`
	WriteLatency time.Duration `json:"write_latency_ns"`
	CycleTime    time.Duration `json:"cycle_time_ns"`
}

// OK reports whether both halves of the cycle succeeded.
func (s Status) OK() bool { return s.ReadOK && s.WriteOK }

// String renders the status as a single log-friendly line.
func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle=%d session=%s", s.Cycle, shortSession(s.Session))
	writeOp(&b, "read", s.ReadOK, s.ReadError, s.ReadLatency)
	if s.WriteSkipped {
		b.WriteString(" write=skipped")
	} else {
		writeOp(&b, "write", s.WriteOK, s.WriteError, s.WriteLatency)
	}
	fmt.Fprintf(&b, " cycle_time=%s", s.CycleTime.Round(time.Microsecond))
	return b.String()
}

func writeOp(b *strings.Builder, name string, ok bool, errText string, d time.Duration) {
	if ok {
		fmt.Fprintf(b, " %s=ok(%s)", name, d.Round(time.Microsecond))
		return
	}
	fmt.Fprintf(b, " %s=fail(%s: %s)", name, d.Round(time.Microsecond), errText)
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

package diagnostics

import (
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/kvpbridge/internal/monitoring"
)

// LogSink logs every failed cycle and one in Every successful cycles.
// Every <= 0 logs failures only.
type LogSink struct {
	Every uint64
}

// Handle logs s when it is a failure or falls on the sampling interval.
func (l LogSink) Handle(s Status) {
	if !s.OK() {
		monitoring.Logf("[diag] degraded %s", s)
		return
	}
	if l.Every > 0 && s.Cycle%l.Every == 0 {
		monitoring.Logf("[diag] %s", s)
	}
}

// DefaultFailureThreshold is the number of consecutive failed cycles after
// which the health service reports NOT_SERVING.
const DefaultFailureThreshold = 10

// HealthSink mirrors cycle outcomes onto a gRPC health server.
type HealthSink struct {
	mu        sync.Mutex
	server    *health.Server
	service   string
	threshold int
	failures  int
	serving   bool
}

// NewHealthSink reports on service through srv. The service starts
// NOT_SERVING until the first successful cycle.
func NewHealthSink(srv *health.Server, service string, threshold int) *HealthSink {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	srv.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthSink{server: srv, service: service, threshold: threshold}
}

// Handle updates the serving status from one cycle.
func (h *HealthSink) Handle(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.OK() {
		if !h.serving {
			h.server.SetServingStatus(h.service, healthpb.HealthCheckResponse_SERVING)
			h.serving = true
		}
		h.failures = 0
		return
	}
	h.failures++
	if h.failures >= h.threshold && h.serving {
		h.serving = false
		monitoring.Logf("[diag] %d consecutive failed cycles, reporting %s NOT_SERVING", h.failures, h.service)
		h.server.SetServingStatus(h.service, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// MarkDown reports NOT_SERVING, e.g. after a disconnect.
func (h *HealthSink) MarkDown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.serving = false
	h.server.SetServingStatus(h.service, healthpb.HealthCheckResponse_NOT_SERVING)
}

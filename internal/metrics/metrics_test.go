package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCycle(time.Millisecond)
	m.ObserveIO(OpRead, time.Millisecond, errors.New("x"))
	m.SetConnected(true)
	m.DiagnosticDropped()
	m.RequestAbandoned(OpRead)()
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCycle(4 * time.Millisecond)
	m.ObserveCycle(6 * time.Millisecond)
	m.ObserveIO(OpRead, time.Millisecond, nil)
	m.ObserveIO(OpRead, time.Millisecond, errors.New("timeout"))
	m.ObserveIO(OpWrite, time.Millisecond, errors.New("refused"))
	m.SetConnected(true)
	m.DiagnosticDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ioErrors.WithLabelValues(OpRead)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ioErrors.WithLabelValues(OpWrite)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diagDropped))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestHandlerExposesBridgeMetrics(t *testing.T) {
	m := New()
	m.ObserveCycle(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "kvpbridge_cycles_total 1"), body)
	assert.Contains(t, body, "kvpbridge_cycle_duration_seconds_bucket")
}

func TestRequestAbandoned(t *testing.T) {
	m := New()
	done := m.RequestAbandoned(OpWrite)
	m.RequestAbandoned(OpWrite)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.abandoned.WithLabelValues(OpWrite)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inFlight.WithLabelValues(OpWrite)))

	done()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.abandoned.WithLabelValues(OpWrite)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues(OpWrite)), "one request still running")
}

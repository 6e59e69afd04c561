// Package api serves the bridge's read-only state views, command staging
// and debug pages over HTTP.
package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/kvpbridge/internal/controlloop"
	"github.com/banshee-data/kvpbridge/internal/diagnostics"
	"github.com/banshee-data/kvpbridge/internal/httputil"
	"github.com/banshee-data/kvpbridge/internal/joints"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Loop is the control loop view the server reads from and stages into.
type Loop interface {
	Latest() (state, command joints.JointSet, ok bool)
	Stage(targets map[string]float64) error
	Stats() controlloop.Stats
}

// Link describes the live connection.
type Link interface {
	Connected() bool
	Session() string
	Cycle() uint64
}

// Diagnostics supplies aggregated cycle diagnostics.
type Diagnostics interface {
	Snapshot() diagnostics.Snapshot
}

// Server holds the sources behind the HTTP routes. Metrics may be nil.
type Server struct {
	loop    Loop
	link    Link
	diag    Diagnostics
	metrics http.Handler
}

// NewServer creates a Server.
func NewServer(loop Loop, link Link, diag Diagnostics, metrics http.Handler) *Server {
	return &Server{loop: loop, link: link, diag: diag, metrics: metrics}
}

// JointsView is the JSON form of a joint set.
type JointsView struct {
	Names    []string  `json:"names"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity,omitempty"`
	Effort   []float64 `json:"effort,omitempty"`
}

func viewOf(js joints.JointSet, withDynamics bool) JointsView {
	v := JointsView{Names: js.Names, Position: js.Position}
	if withDynamics {
		v.Velocity = js.Velocity
		v.Effort = js.Effort
	}
	return v
}

// CommandRequest is the body accepted by POST /api/command.
type CommandRequest struct {
	Positions map[string]float64 `json:"positions"`
}

// DiagnosticsView is the body returned by GET /api/diagnostics.
type DiagnosticsView struct {
	Connected bool                 `json:"connected"`
	Session   string               `json:"session"`
	Cycle     uint64               `json:"cycle"`
	Loop      controlloop.Stats    `json:"loop"`
	Summary   diagnostics.Snapshot `json:"summary"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[http] [%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes, /metrics and the debug pages.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/command", s.commandHandler)
	mux.HandleFunc("/api/diagnostics", s.showDiagnostics)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	s.AttachAdminRoutes(mux)
	return mux
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	state, _, ok := s.loop.Latest()
	if !ok {
		httputil.ServiceUnavailable(w, "no cycle has completed yet")
		return
	}
	httputil.WriteJSONOK(w, viewOf(state, true))
}

func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, cmd, ok := s.loop.Latest()
		if !ok {
			httputil.ServiceUnavailable(w, "no cycle has completed yet")
			return
		}
		httputil.WriteJSONOK(w, viewOf(cmd, false))
	case http.MethodPost:
		var req CommandRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if len(req.Positions) == 0 {
			httputil.BadRequest(w, "positions must name at least one joint")
			return
		}
		if err := s.loop.Stage(req.Positions); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]int{"staged": len(req.Positions)})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) diagnosticsView() DiagnosticsView {
	return DiagnosticsView{
		Connected: s.link.Connected(),
		Session:   s.link.Session(),
		Cycle:     s.link.Cycle(),
		Loop:      s.loop.Stats(),
		Summary:   s.diag.Snapshot(),
	}
}

func (s *Server) showDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.diagnosticsView())
}

// AttachAdminRoutes registers plain-text debug pages under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("kvp", "bridge connection and cycle summary", func(w http.ResponseWriter, r *http.Request) {
		v := s.diagnosticsView()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "connected: %v\nsession:   %s\ncycle:     %d\n", v.Connected, v.Session, v.Cycle)
		fmt.Fprintf(w, "loop:      cycles=%d overruns=%d errors=%d\n", v.Loop.Cycles, v.Loop.Overruns, v.Loop.Errors)
		fmt.Fprintf(w, "failures:  read=%d write=%d consecutive=%d\n",
			v.Summary.ReadFailures, v.Summary.WriteFailures, v.Summary.ConsecutiveFailures)
		l := v.Summary.Latency
		fmt.Fprintf(w, "cycle ms:  n=%d mean=%.3f sd=%.3f p50=%.3f p99=%.3f max=%.3f\n",
			l.Samples, l.MeanMs, l.StdDevMs, l.P50Ms, l.P99Ms, l.MaxMs)
		if v.Summary.Last != nil {
			fmt.Fprintf(w, "last:      %s\n", v.Summary.Last)
		}
		if v.Summary.LastFailure != nil {
			fmt.Fprintf(w, "failure:   %s\n", v.Summary.LastFailure)
		}
	})

	debug.HandleFunc("kvp-state", "latest joint state and command", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		state, cmd, ok := s.loop.Latest()
		if !ok {
			io.WriteString(w, "no cycle has completed yet\n")
			return
		}
		fmt.Fprintf(w, "%-16s %14s %14s\n", "joint", "position", "command")
		for i, name := range state.Names {
			fmt.Fprintf(w, "%-16s %14.6f %14.6f\n", name, state.Position[i], cmd.Position[i])
		}
	})
}

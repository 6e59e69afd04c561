package hwinterface

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/kvpbridge/internal/metrics"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
)

// worker tracks one side's request state across cycles.
type worker struct {
	op      string
	metrics *metrics.Metrics
	// pending is non-nil while a request abandoned on timeout or stop is still
	// running; it is closed when that request returns.
	pending chan struct{}
	failing bool
}

// call runs fn under the I/O timeout. If fn outlives the timeout or stop is
// closed, call returns without waiting and the connection is treated as busy
// until fn returns, so at most one request is ever in flight per connection.
func (w *worker) call(stop <-chan struct{}, timeout time.Duration, fn func(ctx context.Context) error) error {
	if w.pending != nil {
		select {
		case <-w.pending:
			w.pending = nil
		default:
			return ErrRequestInFlight
		}
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		err = fn(ctx)
	}()

	select {
	case <-done:
		cancel()
		return err
	case <-ctx.Done():
		select {
		case <-done:
			return err
		default:
		}
		w.abandon(done)
		return ctx.Err()
	case <-stop:
		cancel()
		select {
		case <-done:
			return ErrShutdown
		default:
		}
		w.abandon(done)
		monitoring.Logf("[kvp] %s request still running at disconnect", w.op)
		return ErrShutdown
	}
}

// abandon marks the connection busy until done closes and tracks the
// running request in metrics so a client that never returns is visible.
func (w *worker) abandon(done chan struct{}) {
	w.pending = done
	returned := w.metrics.RequestAbandoned(w.op)
	go func() {
		<-done
		returned()
	}()
}

// record logs transitions between healthy and failing so a dead link does
// not log once per cycle; every failure still reaches diagnostics.
func (w *worker) record(err error) {
	switch {
	case err != nil && !w.failing:
		w.failing = true
		monitoring.Logf("[kvp] %s failing: %v", w.op, err)
	case err == nil && w.failing:
		w.failing = false
		monitoring.Logf("[kvp] %s recovered", w.op)
	}
}

func (h *HardwareInterface) readLoop(s *session) {
	defer s.wg.Done()
	s.started.Done()

	for {
		if !s.gate.Start.Wait() || s.stop.Load() {
			return
		}

		start := h.clock.Now()
		var raw string
		err := s.reader.call(s.stopCh, h.opts.Endpoint.IOTimeout, func(ctx context.Context) error {
			v, err := s.readConn.ReadVariable(ctx, h.opts.Endpoint.ReadVariable)
			raw = v
			return err
		})
		latency := h.clock.Since(start)
		if err == nil {
			// Decode into scratch first so a malformed value leaves state
			// at its previous, valid contents.
			err = h.opts.Codec.DecodeState(raw, h.scratch)
			if err == nil {
				h.state.CopyFrom(h.scratch)
			}
		}
		if !errors.Is(err, ErrShutdown) {
			h.opts.Metrics.ObserveIO(s.reader.op, latency, err)
			if err != nil {
				err = &TransientIOError{Op: s.reader.op, Cycle: s.cycle, Err: err}
			}
		}
		s.reader.record(err)
		s.report.readErr = err
		s.report.readLatency = latency

		s.gate.Done.Wait()
	}
}

func (h *HardwareInterface) writeLoop(s *session) {
	defer s.wg.Done()
	s.started.Done()

	for {
		if !s.gate.Start.Wait() || s.stop.Load() {
			return
		}

		s.report.writeSkipped = !h.armed
		s.report.writeErr = nil
		s.report.writeLatency = 0
		if h.armed {
			start := h.clock.Now()
			payload, err := h.opts.Codec.EncodeCommand(h.command)
			if err == nil {
				err = s.writer.call(s.stopCh, h.opts.Endpoint.IOTimeout, func(ctx context.Context) error {
					return s.writeConn.WriteVariable(ctx, h.opts.Endpoint.WriteVariable, payload)
				})
			}
			latency := h.clock.Since(start)
			if !errors.Is(err, ErrShutdown) {
				h.opts.Metrics.ObserveIO(s.writer.op, latency, err)
				if err != nil {
					err = &TransientIOError{Op: s.writer.op, Cycle: s.cycle, Err: err}
				}
			}
			s.writer.record(err)
			s.report.writeErr = err
			s.report.writeLatency = latency
		}

		s.gate.Done.Wait()
	}
}

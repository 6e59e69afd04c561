package diagnostics

import (
	"context"
	"sync/atomic"
)

// DefaultBuffer is the publisher channel capacity used when none is given.
const DefaultBuffer = 16

// Sink consumes status messages drained from a Publisher.
type Sink interface {
	Handle(Status)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Status)

// Handle calls f.
func (f SinkFunc) Handle(s Status) { f(s) }

// Publisher is a bounded, non-blocking status channel. Publish never blocks
// the caller: when the buffer is full the message is dropped and counted.
type Publisher struct {
	ch        chan Status
	published atomic.Uint64
	dropped   atomic.Uint64
	onDrop    func()
}

// NewPublisher returns a publisher with the given buffer size.
func NewPublisher(size int) *Publisher {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Publisher{ch: make(chan Status, size)}
}

// OnDrop installs a callback run for each dropped message. It must be set
// before the first Publish.
func (p *Publisher) OnDrop(fn func()) { p.onDrop = fn }

// Publish offers s to the buffer and reports whether it was accepted. A nil
// publisher accepts nothing.
func (p *Publisher) Publish(s Status) bool {
	if p == nil {
		return false
	}
	select {
	case p.ch <- s:
		p.published.Add(1)
		return true
	default:
		p.dropped.Add(1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return false
	}
}

// Published returns the number of accepted messages.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Dropped returns the number of messages dropped on a full buffer.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// C exposes the buffer for callers that want to drain it themselves.
func (p *Publisher) C() <-chan Status { return p.ch }

// Run delivers buffered messages to every sink until ctx is done.
func (p *Publisher) Run(ctx context.Context, sinks ...Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-p.ch:
			for _, sink := range sinks {
				sink.Handle(s)
			}
		}
	}
}

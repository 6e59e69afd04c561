package hwinterface

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Read before Connect or after Disconnect.
	ErrNotConnected = errors.New("hwinterface: not connected")
	// ErrAlreadyConnected is returned by Connect on a live interface.
	ErrAlreadyConnected = errors.New("hwinterface: already connected")
	// ErrShutdown is returned by a Read that Disconnect interrupted.
	ErrShutdown = errors.New("hwinterface: shut down during cycle")
	// ErrRequestInFlight marks a cycle skipped because the previous request on
	// that connection timed out and has not returned yet.
	ErrRequestInFlight = errors.New("hwinterface: previous request still in flight")
)

// ConnectionError reports a failure to open one side of the connection
// pair during Connect.
type ConnectionError struct {
	Side    string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s side to %s: %v", e.Side, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransientIOError reports one failed per-cycle read or write. It is
// recorded in diagnostics and never returned to the control thread.
type TransientIOError struct {
	Op    string
	Cycle uint64
	Err   error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("cycle %d %s: %v", e.Cycle, e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

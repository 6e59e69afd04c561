package endpoint

import (
	"context"
	"errors"
	"sync"
)

// WriteCall records one WriteVariable call on a MockClient.
type WriteCall struct {
	Name  string
	Value string
}

// MockClient is a scriptable Client for tests. Zero-value funcs succeed:
// reads return "" and writes are accepted.
type MockClient struct {
	mu sync.Mutex

	// ReadFunc, when set, produces the result of ReadVariable.
	ReadFunc func(ctx context.Context, name string) (string, error)
	// WriteFunc, when set, produces the result of WriteVariable.
	WriteFunc func(ctx context.Context, name, value string) error
	// CloseErr is returned by Close.
	CloseErr error

	reads  []string
	writes []WriteCall
	closed bool
	done   chan struct{}
}

// NewMockClient returns a MockClient ready for use.
func NewMockClient() *MockClient {
	return &MockClient{done: make(chan struct{})}
}

// ReadVariable records the call and delegates to ReadFunc.
func (m *MockClient) ReadVariable(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.reads = append(m.reads, name)
	fn := m.ReadFunc
	m.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(ctx, name)
}

// WriteVariable records the call and delegates to WriteFunc.
func (m *MockClient) WriteVariable(ctx context.Context, name, value string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.writes = append(m.writes, WriteCall{Name: name, Value: value})
	fn := m.WriteFunc
	m.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, name, value)
}

// Close marks the client closed and closes Done.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return m.CloseErr
}

// Done is closed when Close is called. Blocking ReadFunc/WriteFunc
// implementations can select on it to emulate a socket being torn down.
func (m *MockClient) Done() <-chan struct{} { return m.done }

// Closed reports whether Close has been called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reads returns the variable names read so far.
func (m *MockClient) Reads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reads...)
}

// Writes returns the writes recorded so far.
func (m *MockClient) Writes() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteCall(nil), m.writes...)
}

// ErrMockExhausted is returned by MockDialer when it runs out of clients.
var ErrMockExhausted = errors.New("endpoint: mock dialer has no more clients")

// MockDialer hands out pre-built clients in order. Errs[i], when non-nil,
// fails the i-th Dial call instead.
type MockDialer struct {
	mu        sync.Mutex
	Clients   []Client
	Errs      []error
	calls     int
	next      int
	Addresses []string
}

// Dial returns the next scripted client or error.
func (d *MockDialer) Dial(ctx context.Context, address string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	d.Addresses = append(d.Addresses, address)
	if i < len(d.Errs) && d.Errs[i] != nil {
		return nil, d.Errs[i]
	}
	if d.next >= len(d.Clients) {
		return nil, ErrMockExhausted
	}
	c := d.Clients[d.next]
	d.next++
	return c, nil
}

// Calls returns the number of Dial calls.
func (d *MockDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

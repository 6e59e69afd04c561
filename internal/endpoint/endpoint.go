// Package endpoint abstracts the remote controller that exposes named
// variables over a request/response network protocol. The bridge never
// speaks the wire protocol itself: a Dialer registered for an address
// scheme hands back a Client, and the bridge only reads and writes variables
// by name through it.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("endpoint: client closed")
	// ErrUnknownScheme is returned when no dialer is registered for an address.
	ErrUnknownScheme = errors.New("endpoint: no dialer registered for scheme")
	// ErrNoSuchVariable is returned when the remote side does not know a name.
	ErrNoSuchVariable = errors.New("endpoint: no such variable")
)

// Client is one open logical connection to the remote controller. A Client
// serves one request at a time; callers must not issue concurrent calls on
// the same Client.
type Client interface {
	// ReadVariable fetches the current value of the named variable.
	ReadVariable(ctx context.Context, name string) (string, error)
	// WriteVariable stores value in the named variable.
	WriteVariable(ctx context.Context, name, value string) error
	// Close releases the connection. Calls blocked in ReadVariable or
	// WriteVariable must return once Close is called or their ctx is done;
	// a call that never returns keeps its goroutine alive after Disconnect.
	Close() error
}

// Dialer opens Clients.
type Dialer interface {
	Dial(ctx context.Context, address string) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string) (Client, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, address string) (Client, error) {
	return f(ctx, address)
}

// Registry selects a Dialer by the scheme of the address, e.g. "sim://arm".
type Registry struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{dialers: make(map[string]Dialer)}
}

// Register installs d for scheme, replacing any previous registration.
func (r *Registry) Register(scheme string, d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[scheme] = d
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.dialers))
	for s := range r.dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Dial resolves the scheme of address and dials through the matching Dialer.
func (r *Registry) Dial(ctx context.Context, address string) (Client, error) {
	scheme, err := Scheme(address)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	d, ok := r.dialers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScheme, scheme)
	}
	return d.Dial(ctx, address)
}

// Scheme extracts the scheme of an endpoint address.
func Scheme(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint address %q: %w", address, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("endpoint address %q has no scheme", address)
	}
	return u.Scheme, nil
}

// Package browsertest provides scriptable in-memory sessions and runtimes for
// tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/lockstep/pkg/browser"
)

// Handler answers one command.
type Handler func(ctx context.Context, args ...any) (any, error)

// Call is one recorded Execute call.
type Call struct {
	Name string
	Args []any
}

// Session is a fake browser.Session. Commands without a handler return
// (nil, nil), except screenshot which returns a distinct PNG-like payload per
// call.
type Session struct {
	id string

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	shots    int
	closed   bool
}

// NewSession creates a fake session.
func NewSession(id string) *Session {
	return &Session{id: id, handlers: make(map[string]Handler)}
}

// Handle installs a handler for name.
func (s *Session) Handle(name string, h Handler) *Session {
	s.mu.Lock()
	s.handlers[name] = h
	s.mu.Unlock()
	return s
}

// Return makes name answer with value.
func (s *Session) Return(name string, value any) *Session {
	return s.Handle(name, func(context.Context, ...any) (any, error) { return value, nil })
}

// Fail makes name fail with err.
func (s *Session) Fail(name string, err error) *Session {
	return s.Handle(name, func(context.Context, ...any) (any, error) { return nil, err })
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Execute records the call and runs its handler.
func (s *Session) Execute(ctx context.Context, name string, args ...any) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, browser.WrapDriverError(browser.DriverCodeSessionClosed, name, "session is closed", browser.ErrSessionClosed)
	}
	s.calls = append(s.calls, Call{Name: name, Args: append([]any(nil), args...)})
	h, ok := s.handlers[name]
	if !ok && name == browser.CommandScreenshot {
		s.shots++
		shot := []byte(fmt.Sprintf("png:%s:%d", s.id, s.shots))
		s.mu.Unlock()
		return shot, nil
	}
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return h(ctx, args...)
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns the recorded calls in order.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallNames returns the names of the recorded calls in order.
func (s *Session) CallNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		names = append(names, c.Name)
	}
	return names
}

// Count returns how often name was executed.
func (s *Session) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Runtime is a fake browser.Runtime creating Sessions keyed by device id.
type Runtime struct {
	configure func(*Session)

	mu       sync.Mutex
	sessions map[string]*Session
	options  []browser.DeviceOptions
	failures map[string]error
	closed   bool
}

// NewRuntime creates a fake runtime. configure, when non-nil, scripts every
// new session before it is returned.
func NewRuntime(configure func(*Session)) *Runtime {
	return &Runtime{
		configure: configure,
		sessions:  make(map[string]*Session),
		failures:  make(map[string]error),
	}
}

// FailFor makes session creation for deviceID fail with err.
func (r *Runtime) FailFor(deviceID string, err error) *Runtime {
	r.mu.Lock()
	r.failures[deviceID] = err
	r.mu.Unlock()
	return r
}

// NewSession creates a fake session named after the injected device id.
func (r *Runtime) NewSession(_ context.Context, opts browser.DeviceOptions) (browser.Session, error) {
	id := opts.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, browser.ErrUnavailable
	}
	r.options = append(r.options, opts.Clone())
	if err, ok := r.failures[id]; ok {
		return nil, err
	}
	sess := NewSession(id)
	if r.configure != nil {
		r.configure(sess)
	}
	r.sessions[id] = sess
	return sess, nil
}

// Session returns the fake session created for deviceID.
func (r *Runtime) Session(deviceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[deviceID]
}

// Options returns the options passed to NewSession in call order.
func (r *Runtime) Options() []browser.DeviceOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]browser.DeviceOptions(nil), r.options...)
}

// Close marks the runtime closed.
func (r *Runtime) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

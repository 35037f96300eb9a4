package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager tracks the active session of each device for a runtime.
type Manager struct {
	runtime  Runtime
	sessions map[string]Session
	order    []string
	closed   bool
	mu       sync.Mutex
}

// NewManager creates a Manager backed by the provided runtime.
func NewManager(runtime Runtime) *Manager {
	return &Manager{
		runtime:  runtime,
		sessions: make(map[string]Session),
	}
}

// CreateSession opens a session for deviceID. The device id is injected into
// the options handed to the runtime.
func (m *Manager) CreateSession(ctx context.Context, deviceID string, opts DeviceOptions) (Session, error) {
	if m == nil || m.runtime == nil {
		return nil, ErrUnavailable
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrUnavailable
	}
	if _, exists := m.sessions[deviceID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, deviceID)
	}
	m.mu.Unlock()

	sess, err := m.runtime.NewSession(ctx, opts.WithID(deviceID))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[deviceID] = sess
	m.order = append(m.order, deviceID)
	m.mu.Unlock()
	return sess, nil
}

// GetSession returns the session of a device.
func (m *Manager) GetSession(deviceID string) (Session, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[deviceID]
	return sess, ok
}

// DeviceIDs returns the devices with open sessions in creation order.
func (m *Manager) DeviceIDs() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// CloseSession closes and removes a session.
func (m *Manager) CloseSession(deviceID string) error {
	if m == nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	if ok {
		delete(m.sessions, deviceID)
		m.order = removeID(m.order, deviceID)
	}
	m.mu.Unlock()
	if !ok || sess == nil {
		return ErrSessionClosed
	}
	return sess.Close()
}

// CloseSessions closes every session but keeps the runtime usable.
func (m *Manager) CloseSessions() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	sessions := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		sessions = append(sessions, m.sessions[id])
	}
	m.sessions = make(map[string]Session)
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session %s: %w", sess.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all sessions and releases the runtime. Subsequent calls are
// no-ops.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.CloseSessions()
	if m.runtime != nil {
		if rerr := m.runtime.Close(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	return err
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

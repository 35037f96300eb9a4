// Package browser defines the device session port: a named command catalogue
// executed against one remote target, and the runtime that creates sessions.
package browser

import "context"

//go:generate mockgen -package=proxy -destination=../proxy/mock_session_test.go github.com/odvcencio/lockstep/pkg/browser Session

// Runtime creates device sessions.
type Runtime interface {
	NewSession(ctx context.Context, opts DeviceOptions) (Session, error)
	Close() error
}

// Session is the port implemented by remote-control adapters. Execute runs a
// command from the Catalogue (or an adapter-specific custom command) and
// returns its result.
type Session interface {
	ID() string
	Execute(ctx context.Context, name string, args ...any) (any, error)
	Close() error
}

// OptionID is the device option key holding the device id.
const OptionID = "id"

// DeviceOptions carries arbitrary per-device driver settings.
type DeviceOptions map[string]any

// ID returns the injected device id, or "" when absent.
func (o DeviceOptions) ID() string {
	id, _ := o[OptionID].(string)
	return id
}

// Clone returns a shallow copy.
func (o DeviceOptions) Clone() DeviceOptions {
	out := make(DeviceOptions, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// WithID returns a copy with the device id set.
func (o DeviceOptions) WithID(id string) DeviceOptions {
	out := o.Clone()
	out[OptionID] = id
	return out
}

// Package proxy wraps a device session so that every command with possible
// side effects is recorded into a shared flow, with a snapshot of the device
// taken before the command runs.
package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/lockstep/pkg/browser"
	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/telemetry"
	"github.com/odvcencio/lockstep/pkg/trace"
	"github.com/odvcencio/lockstep/pkg/wait"
)

// Proxy is a recording browser.Session for one device of a flow.
type Proxy struct {
	session  browser.Session
	flow     *trace.Flow
	deviceID string

	store   trace.FlowStore
	waiter  *wait.Waiter
	abort   *wait.AbortToken
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  oteltrace.Tracer
	options browser.DeviceOptions
	adapter Adapter

	handlers map[string]Executor
	exec     Executor
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger; it is tagged with the proxy category.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Proxy) { p.logger = logger }
}

// WithMetrics sets the prometheus counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithTracer sets the span tracer.
func WithTracer(t oteltrace.Tracer) Option {
	return func(p *Proxy) { p.tracer = t }
}

// WithStore persists the flow when the session ends.
func WithStore(store trace.FlowStore) Option {
	return func(p *Proxy) { p.store = store }
}

// WithWaiter sets the waiter used by WaitUntil.
func WithWaiter(w *wait.Waiter) Option {
	return func(p *Proxy) { p.waiter = w }
}

// WithAbortToken shares an abort token with the caller.
func WithAbortToken(t *wait.AbortToken) Option {
	return func(p *Proxy) { p.abort = t }
}

// WithDeviceOptions sets the options recorded for the device when the proxy
// registers it in the flow.
func WithDeviceOptions(opts browser.DeviceOptions) Option {
	return func(p *Proxy) { p.options = opts }
}

// WithAdapter runs an app framework hook after every navigation.
func WithAdapter(a Adapter) Option {
	return func(p *Proxy) { p.adapter = a }
}

// New wraps session for deviceID, registering the device in flow when it is
// not already part of it.
func New(session browser.Session, flow *trace.Flow, deviceID string, opts ...Option) *Proxy {
	p := &Proxy{
		session:  session,
		flow:     flow,
		deviceID: deviceID,
		logger:   logging.Nop(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.abort == nil {
		p.abort = wait.NewAbortToken()
	}
	if p.waiter == nil {
		p.waiter = wait.New(config.DefaultConfig().Wait)
		p.waiter.Logger = logging.For(p.logger, logging.CategoryWait)
		p.waiter.Metrics = p.metrics
	}
	p.logger = logging.For(p.logger, logging.CategoryProxy).With().
		Str(logging.FieldDeviceID, deviceID).
		Str(logging.FieldFlowID, flow.ID()).
		Logger()

	if _, ok := flow.Device(deviceID); !ok {
		// a concurrent registration of the same id is equivalent
		_, _ = flow.AddDevice(deviceID, p.options)
	}

	p.handlers = map[string]Executor{
		CommandCheckpoint:        p.handleCheckpoint,
		CommandName:              p.handleName,
		CommandGetFlow:           p.handleGetFlow,
		browser.CommandWaitUntil: p.handleWaitUntil,
	}
	p.exec = Chain(
		p.telemetryMiddleware(),
		p.recordingMiddleware(),
		p.persistMiddleware(),
		p.adapterMiddleware(),
	)(p.dispatch)
	return p
}

// ID returns the wrapped session id.
func (p *Proxy) ID() string {
	return p.session.ID()
}

// DeviceID returns the device this proxy records for.
func (p *Proxy) DeviceID() string {
	return p.deviceID
}

// Flow returns the shared flow.
func (p *Proxy) Flow() *trace.Flow {
	return p.flow
}

// Session returns the wrapped session.
func (p *Proxy) Session() browser.Session {
	return p.session
}

// AbortToken returns the token aborting this device's waits.
func (p *Proxy) AbortToken() *wait.AbortToken {
	return p.abort
}

// Execute runs a command through the recording chain. The wrapped session's
// result and error are returned unchanged.
func (p *Proxy) Execute(ctx context.Context, name string, args ...any) (any, error) {
	_, excluded := Excluded(name)
	return p.exec(&ExecutionContext{
		Context:   ctx,
		DeviceID:  p.deviceID,
		Command:   name,
		Args:      args,
		Excluded:  excluded,
		StartTime: time.Now(),
	})
}

// Close closes the wrapped session without ending it.
func (p *Proxy) Close() error {
	return p.session.Close()
}

// Checkpoint snapshots the device and closes its pending steps into a
// checkpoint named name.
func (p *Proxy) Checkpoint(ctx context.Context, name string) (*trace.Checkpoint, error) {
	result, err := p.Execute(ctx, CommandCheckpoint, name)
	if err != nil {
		return nil, err
	}
	cp, _ := result.(*trace.Checkpoint)
	return cp, nil
}

// SetName names the flow.
func (p *Proxy) SetName(ctx context.Context, name string) error {
	_, err := p.Execute(ctx, CommandName, name)
	return err
}

// End persists the flow when it changed and ends the session.
func (p *Proxy) End(ctx context.Context) error {
	_, err := p.Execute(ctx, browser.CommandEnd)
	return err
}

// WaitUntil records a waitUntil step and waits for cond on this device.
// Non-positive durations use the waiter defaults.
func (p *Proxy) WaitUntil(ctx context.Context, cond any, timeout, interval time.Duration) (any, error) {
	return p.Execute(ctx, browser.CommandWaitUntil, cond, timeout, interval)
}

func (p *Proxy) dispatch(ec *ExecutionContext) (any, error) {
	if h, ok := p.handlers[ec.Command]; ok {
		return h(ec)
	}
	return p.session.Execute(ec.Context, ec.Command, ec.Args...)
}

func (p *Proxy) handleCheckpoint(ec *ExecutionContext) (any, error) {
	name := ""
	if len(ec.Args) > 0 {
		name = fmt.Sprint(ec.Args[0])
	}
	p.captureSnapshot(ec.Context)
	cp, err := p.flow.CloseCheckpoint(p.deviceID, name)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("checkpoint", name).Int("steps", len(cp.Steps)).Msg("checkpoint closed")
	return cp, nil
}

func (p *Proxy) handleName(ec *ExecutionContext) (any, error) {
	if len(ec.Args) == 0 {
		return nil, lserrors.New(lserrors.ErrCodeInvalidInput, "name requires a flow name")
	}
	p.flow.SetName(fmt.Sprint(ec.Args[0]))
	return nil, nil
}

func (p *Proxy) handleGetFlow(*ExecutionContext) (any, error) {
	return p.flow, nil
}

// handleWaitUntil evaluates the condition locally; arguments are the
// condition and optional timeout and interval.
func (p *Proxy) handleWaitUntil(ec *ExecutionContext) (any, error) {
	if len(ec.Args) == 0 {
		return nil, lserrors.NewInvalidCondition(nil)
	}
	var durations [2]time.Duration
	for i := range durations {
		if len(ec.Args) <= i+1 {
			break
		}
		d, err := asDuration(ec.Args[i+1])
		if err != nil {
			return nil, err
		}
		durations[i] = d
	}
	ctx := wait.WithAbort(ec.Context, p.abort)
	return p.waiter.Until(ctx, ec.Args[0], durations[0], durations[1])
}

// asDuration accepts a time.Duration or an integer number of milliseconds.
func asDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	default:
		return 0, lserrors.New(lserrors.ErrCodeInvalidInput, fmt.Sprintf("invalid wait duration %v (%T)", v, v))
	}
}

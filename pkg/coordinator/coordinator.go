// Package coordinator drives one logical test over several devices: it owns
// a session and a recording proxy per configured device, all writing into one
// shared flow, and fans commands out to them concurrently.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/lockstep/pkg/browser"
	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/proxy"
	"github.com/odvcencio/lockstep/pkg/telemetry"
	"github.com/odvcencio/lockstep/pkg/trace"
	"github.com/odvcencio/lockstep/pkg/wait"
)

// Coordinator maps device ids to recording proxies over one shared flow.
type Coordinator struct {
	manager     *browser.Manager
	flow        *trace.Flow
	proxies     map[string]*proxy.Proxy
	order       []string
	maxParallel int

	store   trace.FlowStore
	adapter proxy.Adapter
	waiter  *wait.Waiter
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  oteltrace.Tracer

	mu     sync.Mutex
	closed bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger shared by the coordinator and its proxies.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the prometheus counters.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer sets the span tracer.
func WithTracer(t oteltrace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithStore persists the shared flow when sessions end.
func WithStore(store trace.FlowStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithAdapter sets the app framework adapter, overriding cfg.AppFramework.
func WithAdapter(a proxy.Adapter) Option {
	return func(c *Coordinator) { c.adapter = a }
}

// WithFlow records into an existing flow instead of a new one.
func WithFlow(flow *trace.Flow) Option {
	return func(c *Coordinator) { c.flow = flow }
}

// New opens a session for every configured device, in configuration order,
// and navigates each one to cfg.BaseURL when it is set. The adapter named by
// cfg.AppFramework runs after every navigation. If any device fails,
// the sessions opened so far are closed and the error is returned.
func New(ctx context.Context, cfg *config.Config, runtime browser.Runtime, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.Devices.Len() == 0 {
		return nil, lserrors.New(lserrors.ErrCodeInvalidInput, "no devices configured").
			WithRemediation("add at least one entry under devices in the config file")
	}

	c := &Coordinator{
		manager:     browser.NewManager(runtime),
		proxies:     make(map[string]*proxy.Proxy, cfg.Devices.Len()),
		maxParallel: cfg.Coordinator.MaxParallel,
		logger:      logging.Nop(),
		tracer:      telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.flow == nil {
		c.flow = trace.NewFlow()
	}
	if c.adapter == nil {
		adapter, err := proxy.AdapterFor(cfg.AppFramework)
		if err != nil {
			return nil, err
		}
		c.adapter = adapter
	}
	c.waiter = wait.New(cfg.Wait)
	c.waiter.Logger = logging.For(c.logger, logging.CategoryWait)
	c.waiter.Metrics = c.metrics
	proxyLogger := c.logger
	c.logger = logging.For(c.logger, logging.CategoryCoordinator).With().
		Str(logging.FieldFlowID, c.flow.ID()).
		Logger()

	for _, dev := range cfg.Devices.All() {
		options := browser.DeviceOptions(dev.Options).WithID(dev.ID)
		if _, ok := c.flow.Device(dev.ID); !ok {
			if _, err := c.flow.AddDevice(dev.ID, options); err != nil {
				return nil, c.abandon(err)
			}
		}
		session, err := c.manager.CreateSession(ctx, dev.ID, options)
		if err != nil {
			return nil, c.abandon(lserrors.Wrap(err, lserrors.ErrCodeSessionCreate,
				fmt.Sprintf("failed to create session for device %s", dev.ID)).
				WithContext("device_id", dev.ID))
		}
		c.proxies[dev.ID] = proxy.New(session, c.flow, dev.ID,
			proxy.WithLogger(proxyLogger),
			proxy.WithMetrics(c.metrics),
			proxy.WithTracer(c.tracer),
			proxy.WithStore(c.store),
			proxy.WithWaiter(c.waiter),
			proxy.WithAdapter(c.adapter),
		)
		c.order = append(c.order, dev.ID)
		c.logger.Debug().Str(logging.FieldDeviceID, dev.ID).Msg("session created")
	}

	if cfg.BaseURL != "" {
		if _, err := c.Broadcast(ctx, browser.CommandURL, cfg.BaseURL); err != nil {
			return nil, c.abandon(err)
		}
	}
	c.logger.Info().Strs("devices", c.order).Msg("coordinator ready")
	return c, nil
}

func (c *Coordinator) abandon(err error) error {
	if cerr := c.manager.CloseSessions(); cerr != nil {
		c.logger.Warn().Err(cerr).Msg("failed to close sessions")
	}
	return err
}

// Flow returns the shared flow.
func (c *Coordinator) Flow() *trace.Flow {
	return c.flow
}

// DeviceIDs returns the devices in configuration order.
func (c *Coordinator) DeviceIDs() []string {
	return append([]string(nil), c.order...)
}

// Select returns the proxy of one device.
func (c *Coordinator) Select(deviceID string) (*proxy.Proxy, error) {
	p, ok := c.proxies[deviceID]
	if !ok {
		return nil, lserrors.NewUnknownDevice(deviceID)
	}
	return p, nil
}

// Broadcast runs a command on every device concurrently. Results are in
// configuration order and include successful devices even when others fail;
// any failure yields a *BroadcastError.
func (c *Coordinator) Broadcast(ctx context.Context, name string, args ...any) (Results, error) {
	return c.broadcast(ctx, c.order, name, args...)
}

// On broadcasts to a subset of devices. Unknown ids fail before anything
// runs.
func (c *Coordinator) On(ctx context.Context, deviceIDs []string, name string, args ...any) (Results, error) {
	ordered, err := c.subset(deviceIDs)
	if err != nil {
		return nil, err
	}
	return c.broadcast(ctx, ordered, name, args...)
}

// subset validates ids and returns them in configuration order.
func (c *Coordinator) subset(deviceIDs []string) ([]string, error) {
	want := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, ok := c.proxies[id]; !ok {
			return nil, lserrors.NewUnknownDevice(id)
		}
		want[id] = true
	}
	ordered := make([]string, 0, len(want))
	for _, id := range c.order {
		if want[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered, nil
}

// Checkpoint closes a checkpoint named name on every device.
func (c *Coordinator) Checkpoint(ctx context.Context, name string) (Results, error) {
	return c.Broadcast(ctx, proxy.CommandCheckpoint, name)
}

// DeviceProbe is a wait condition evaluated against one device.
type DeviceProbe func(ctx context.Context, device *proxy.Proxy) (any, error)

// WaitAny waits on every device at once. The first device whose probe turns
// truthy wins and aborts the others. When no device succeeds the error is a
// *BroadcastError with every device's cause.
func (c *Coordinator) WaitAny(ctx context.Context, probe DeviceProbe, timeout, interval time.Duration) (string, any, error) {
	var (
		once   sync.Once
		winner string
		value  any
	)
	results := c.fanOut(ctx, "coordinator.wait_any", browser.CommandWaitUntil, c.order,
		func(ctx context.Context, abort *wait.AbortToken, p *proxy.Proxy) (any, error) {
			cond := wait.Probe(func(ctx context.Context) (any, error) {
				return probe(ctx, p)
			})
			v, err := p.WaitUntil(ctx, cond, timeout, interval)
			if err == nil {
				once.Do(func() {
					winner, value = p.DeviceID(), v
					abort.Abort()
				})
			}
			return v, err
		})

	if winner != "" {
		c.logger.Debug().Str(logging.FieldDeviceID, winner).Msg("wait won")
		return winner, value, nil
	}
	if be := collectFailures(browser.CommandWaitUntil, results); be != nil {
		return "", nil, be
	}
	return "", nil, lserrors.NewWaitTimeout(timeout)
}

// End ends every session, persisting the shared flow once when it changed,
// then releases the runtime. Later calls are no-ops.
func (c *Coordinator) End(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_, err := c.Broadcast(ctx, browser.CommandEnd)
	if cerr := c.manager.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Close releases every session and the runtime without ending them.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.manager.Close()
}

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/proxy"
	"github.com/odvcencio/lockstep/pkg/telemetry"
	"github.com/odvcencio/lockstep/pkg/wait"
)

// Result is the outcome of a command on one device.
type Result struct {
	DeviceID string
	Value    any
	Err      error
}

// Results are broadcast outcomes in configuration order.
type Results []Result

// Get returns the result of a device.
func (r Results) Get(deviceID string) (Result, bool) {
	for _, res := range r {
		if res.DeviceID == deviceID {
			return res, true
		}
	}
	return Result{}, false
}

// Values maps device ids to the values of successful devices.
func (r Results) Values() map[string]any {
	out := make(map[string]any, len(r))
	for _, res := range r {
		if res.Err == nil {
			out[res.DeviceID] = res.Value
		}
	}
	return out
}

// DeviceError is the failure of one device in a broadcast.
type DeviceError struct {
	DeviceID string
	Err      error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.DeviceID, e.Err)
}

func (e DeviceError) Unwrap() error {
	return e.Err
}

// BroadcastError lists every device that failed a broadcast, in
// configuration order.
type BroadcastError struct {
	Command  string
	Failures []DeviceError
}

func (e *BroadcastError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("[%s] %s failed on %d device(s): %s",
		lserrors.ErrCodeBroadcastFailed, e.Command, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the per-device causes to errors.Is and errors.As.
func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Is matches lserrors.ErrBroadcastFailed.
func (e *BroadcastError) Is(target error) bool {
	var t *lserrors.Error
	if errors.As(target, &t) {
		return t.Code == lserrors.ErrCodeBroadcastFailed
	}
	return false
}

// DeviceIDs returns the failed devices.
func (e *BroadcastError) DeviceIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.DeviceID)
	}
	return ids
}

func collectFailures(command string, results Results) *BroadcastError {
	var failures []DeviceError
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, DeviceError{DeviceID: res.DeviceID, Err: res.Err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &BroadcastError{Command: command, Failures: failures}
}

// fanOut calls fn for every device concurrently and waits for all of them.
// fn gets a context carrying abort; tripping it stops the waits of the other
// devices at their next retry.
func (c *Coordinator) fanOut(ctx context.Context, span string, command string, ids []string,
	fn func(ctx context.Context, abort *wait.AbortToken, p *proxy.Proxy) (any, error)) Results {
	abort := wait.NewAbortToken()
	ctx = wait.WithAbort(ctx, abort)
	ctx, s := c.tracer.Start(ctx, span, oteltrace.WithAttributes(
		telemetry.AttrCommand.String(command),
		telemetry.AttrDeviceCount.Int(len(ids)),
		telemetry.AttrFlowID.String(c.flow.ID()),
	))
	defer s.End()

	results := make(Results, len(ids))
	var g errgroup.Group
	if c.maxParallel > 0 {
		g.SetLimit(c.maxParallel)
	}
	for i, id := range ids {
		i, id := i, id
		p := c.proxies[id]
		g.Go(func() error {
			value, err := fn(ctx, abort, p)
			results[i] = Result{DeviceID: id, Value: value, Err: err}
			// failures are collected per device; peers always run to completion
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.SetStatus(codes.Error, fmt.Sprintf("%d device(s) failed", failed))
	}
	return results
}

func (c *Coordinator) broadcast(ctx context.Context, ids []string, name string, args ...any) (Results, error) {
	results := c.fanOut(ctx, "coordinator.broadcast", name, ids,
		func(ctx context.Context, abort *wait.AbortToken, p *proxy.Proxy) (any, error) {
			value, err := p.Execute(ctx, name, args...)
			if err != nil {
				abort.Abort()
			}
			return value, err
		})
	be := collectFailures(name, results)
	if be == nil {
		return results, nil
	}
	c.logger.Warn().Err(be).Strs("devices", be.DeviceIDs()).Str(logging.FieldCommand, name).Msg("broadcast failed")
	return results, be
}

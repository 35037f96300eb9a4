package proxy

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/lockstep/pkg/browser"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/telemetry"
)

// ExecutionContext carries one command through the middleware chain.
type ExecutionContext struct {
	Context   context.Context
	DeviceID  string
	Command   string
	Args      []any
	Excluded  bool
	StartTime time.Time
}

// Executor runs a command.
type Executor func(ec *ExecutionContext) (any, error)

// Middleware wraps an Executor with additional behavior.
type Middleware func(next Executor) Executor

// Chain composes middlewares in order (first middleware is outermost).
func Chain(middlewares ...Middleware) Middleware {
	return func(final Executor) Executor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// telemetryMiddleware opens a span per command and counts its outcome.
func (p *Proxy) telemetryMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (any, error) {
			ctx, span := p.tracer.Start(ec.Context, "proxy."+ec.Command,
				oteltrace.WithAttributes(
					telemetry.AttrDeviceID.String(ec.DeviceID),
					telemetry.AttrCommand.String(ec.Command),
					telemetry.AttrExcluded.Bool(ec.Excluded),
					telemetry.AttrFlowID.String(p.flow.ID()),
				))
			defer span.End()
			ec.Context = ctx

			result, err := next(ec)

			span.SetAttributes(telemetry.AttrOutcome.String(telemetry.Outcome(err)))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			p.metrics.ObserveCommand(ec.Command, err)

			event := p.logger.Debug()
			switch {
			case browser.IsConnectionError(err):
				event = p.logger.Error().Err(err).Bool("connection_lost", true)
			case err != nil:
				event = p.logger.Warn().Err(err)
			}
			event.Str(logging.FieldCommand, ec.Command).
				Bool("excluded", ec.Excluded).
				Dur("duration", time.Since(ec.StartTime)).
				Msg("command finished")
			return result, err
		}
	}
}

// persistMiddleware stores the flow before the session ends. A store failure
// never prevents the end from being delegated.
func (p *Proxy) persistMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (any, error) {
			if !isSessionEnd(ec.Command) {
				return next(ec)
			}
			storeErr := p.persist(ec.Context)
			result, err := next(ec)
			if storeErr == nil {
				return result, err
			}
			if err == nil {
				return result, storeErr
			}
			return result, errors.Join(err, storeErr)
		}
	}
}

func (p *Proxy) persist(ctx context.Context) error {
	if p.store == nil {
		p.logger.Debug().Msg("no flow store configured, skipping persist")
		return nil
	}
	stored, err := p.flow.StoreIfChanged(ctx, p.store)
	if stored || err != nil {
		p.metrics.ObserveFlowStore(err)
	}
	if err != nil {
		p.logger.Error().Err(err).Str(logging.FieldFlowID, p.flow.ID()).Msg("failed to store flow")
		return err
	}
	if stored {
		p.logger.Info().Str(logging.FieldFlowID, p.flow.ID()).Msg("flow stored")
	}
	return nil
}

// recordingMiddleware appends a command step and a snapshot step before
// delegating any command that is not excluded.
func (p *Proxy) recordingMiddleware() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (any, error) {
			if ec.Excluded {
				return next(ec)
			}
			if _, err := p.flow.RecordCommand(p.deviceID, Label(ec.Command, ec.Args...)); err != nil {
				p.logger.Error().Err(err).Str(logging.FieldCommand, ec.Command).Msg("failed to record command")
			}
			p.captureSnapshot(ec.Context)
			return next(ec)
		}
	}
}

// captureSnapshot records a screenshot of the calling device. A retryable
// driver failure is tried once more; failures are logged and counted only.
func (p *Proxy) captureSnapshot(ctx context.Context) {
	result, err := p.session.Execute(ctx, browser.CommandScreenshot)
	if browser.IsRetryableError(err) && !browser.IsConnectionError(err) {
		p.logger.Debug().Err(err).Msg("retrying snapshot capture")
		result, err = p.session.Execute(ctx, browser.CommandScreenshot)
	}
	var data []byte
	if err == nil {
		data, err = browser.SnapshotBytes(result)
	}
	if err == nil {
		_, err = p.flow.RecordSnapshot(p.deviceID, data)
	}
	p.metrics.ObserveSnapshot(err)
	if err != nil {
		p.logger.Warn().Err(err).Msg("snapshot capture failed")
	}
}

func isSessionEnd(name string) bool {
	return name == browser.CommandEnd || name == browser.CommandEndAll
}

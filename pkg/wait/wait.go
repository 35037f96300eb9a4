// Package wait polls a condition until it is truthy, fails, times out, or is
// aborted by a signal carried on the context.
package wait

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/telemetry"
)

// Clock abstracts time for the waiter.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) *time.Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// Waiter runs condition waits. It holds no mutable state, so one Waiter can
// serve any number of concurrent waits.
type Waiter struct {
	Defaults config.WaitConfig
	Clock    Clock
	Logger   zerolog.Logger
	Metrics  *telemetry.Metrics
}

// New returns a waiter using defaults for non-positive timeouts and intervals.
func New(defaults config.WaitConfig) *Waiter {
	return &Waiter{Defaults: defaults, Logger: logging.Nop()}
}

// Until waits for cond to become truthy and returns its value.
//
// cond is a Probe (or a func(context.Context) (any, error) or
// func() (any, error)), which is re-evaluated every interval while falsy, or a
// pending value (*Future or <-chan Outcome), which fails when it settles
// falsy. Non-positive timeout or interval fall back to the waiter defaults.
//
// The abort signal on ctx (see WithAbort) and ctx cancellation are checked
// at the start of every attempt; an in-flight attempt is never interrupted.
func (w *Waiter) Until(ctx context.Context, cond any, timeout, interval time.Duration) (value any, err error) {
	defer func() { w.Metrics.ObserveWait(err) }()

	c, ok := normalize(cond)
	if !ok {
		return nil, lserrors.NewInvalidCondition(cond)
	}
	timeout, interval = w.resolve(timeout, interval)

	clock := w.clock()
	logger := logging.For(w.Logger, logging.CategoryWait)
	start := clock.Now()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, lserrors.NewWaitAborted(ctx.Err())
		}
		if signal := AbortFrom(ctx); signal != nil && signal.Aborted() {
			return nil, lserrors.NewWaitAborted(nil)
		}

		remaining := timeout - clock.Now().Sub(start)
		if remaining <= 0 {
			return nil, lserrors.NewWaitTimeout(timeout)
		}

		out, settled := w.attempt(ctx, c, clock, remaining)
		if !settled {
			return nil, lserrors.NewWaitTimeout(timeout)
		}
		if out.Err != nil {
			return nil, lserrors.NewConditionRejected(out.Err)
		}
		if Truthy(out.Value) {
			return out.Value, nil
		}
		if c.probe == nil {
			return nil, lserrors.NewConditionFalsy(out.Value)
		}

		logger.Debug().
			Int("attempt", attempt).
			Dur("interval", interval).
			Msg("condition falsy, retrying")

		pause := interval
		if left := timeout - clock.Now().Sub(start); left < pause {
			pause = left
		}
		sleep(ctx, clock, pause)
	}
}

// attempt evaluates the condition once, racing it against a timer armed for
// the remaining budget. settled is false when the timer fired first.
func (w *Waiter) attempt(ctx context.Context, c condition, clock Clock, remaining time.Duration) (Outcome, bool) {
	var (
		results = c.results
		done    <-chan struct{}
	)
	switch {
	case c.probe != nil:
		probeCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch := make(chan Outcome, 1)
		go func() {
			v, err := c.probe(probeCtx)
			ch <- Outcome{Value: v, Err: err}
		}()
		results = ch
	case c.future != nil:
		done = c.future.Done()
	}

	timer := clock.NewTimer(remaining)
	defer timer.Stop()

	select {
	case out, ok := <-results:
		if !ok {
			return Outcome{}, true
		}
		return out, true
	case <-done:
		return c.future.Outcome(), true
	case <-timer.C:
		return Outcome{}, false
	}
}

func (w *Waiter) resolve(timeout, interval time.Duration) (time.Duration, time.Duration) {
	if timeout <= 0 {
		timeout = w.Defaults.Timeout
	}
	if timeout <= 0 {
		timeout = config.DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = w.Defaults.Interval
	}
	if interval <= 0 {
		interval = config.DefaultWaitInterval
	}
	return timeout, interval
}

func (w *Waiter) clock() Clock {
	if w.Clock == nil {
		return realClock{}
	}
	return w.Clock
}

// sleep pauses for d or until ctx is cancelled; the next attempt then
// reports the abort.
func sleep(ctx context.Context, clock Clock, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

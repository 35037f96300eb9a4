package wait

import (
	"context"
	"sync/atomic"
)

// AbortSignal is queried once per attempt; true stops the wait.
type AbortSignal interface {
	Aborted() bool
}

// AbortFunc adapts a plain query to AbortSignal.
type AbortFunc func() bool

// Aborted implements AbortSignal.
func (f AbortFunc) Aborted() bool {
	if f == nil {
		return false
	}
	return f()
}

// AbortToken is a settable abort flag safe for concurrent use.
type AbortToken struct {
	aborted atomic.Bool
}

// NewAbortToken returns an unset token.
func NewAbortToken() *AbortToken {
	return &AbortToken{}
}

// Abort sets the token.
func (t *AbortToken) Abort() {
	t.aborted.Store(true)
}

// Aborted implements AbortSignal.
func (t *AbortToken) Aborted() bool {
	return t != nil && t.aborted.Load()
}

// Reset clears the token so it can be reused.
func (t *AbortToken) Reset() {
	t.aborted.Store(false)
}

type abortKey struct{}

// anyOf is aborted as soon as one of its signals is.
type anyOf []AbortSignal

func (a anyOf) Aborted() bool {
	for _, s := range a {
		if s != nil && s.Aborted() {
			return true
		}
	}
	return false
}

// WithAbort returns a context carrying signal. Signals already on ctx stay
// in effect: the wait aborts when any of them reports true.
func WithAbort(ctx context.Context, signal AbortSignal) context.Context {
	if signal == nil {
		return ctx
	}
	if existing := AbortFrom(ctx); existing != nil {
		signal = anyOf{existing, signal}
	}
	return context.WithValue(ctx, abortKey{}, signal)
}

// AbortFrom returns the abort signal carried by ctx, or nil.
func AbortFrom(ctx context.Context) AbortSignal {
	if ctx == nil {
		return nil
	}
	signal, _ := ctx.Value(abortKey{}).(AbortSignal)
	return signal
}

// IsAborted reports whether ctx is cancelled or its abort signal is set.
func IsAborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	signal := AbortFrom(ctx)
	return signal != nil && signal.Aborted()
}

package wait

import (
	"context"
	"math"
	"reflect"
	"sync"
)

// Probe is a re-callable condition. A falsy result is retried after the
// interval; an error rejects the wait.
type Probe func(ctx context.Context) (any, error)

// Outcome is the settled result of a pending condition.
type Outcome struct {
	Value any
	Err   error
}

// Future is a value that settles once. Any number of waits may observe it.
type Future struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already settled with value.
func Resolved(value any) *Future {
	f := NewFuture()
	f.Resolve(value)
	return f
}

// Go runs probe in its own goroutine and returns a future for its result.
func Go(ctx context.Context, probe Probe) *Future {
	f := NewFuture()
	go func() {
		v, err := probe(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with value. Later calls are ignored.
func (f *Future) Resolve(value any) {
	f.settle(Outcome{Value: value})
}

// Reject settles the future with err. Later calls are ignored.
func (f *Future) Reject(err error) {
	f.settle(Outcome{Err: err})
}

func (f *Future) settle(o Outcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the settled outcome. It blocks until the future settles.
func (f *Future) Outcome() Outcome {
	<-f.done
	return f.outcome
}

// condition is the normalized form of what Until accepts: either a probe
// or a single pending source.
type condition struct {
	probe   Probe
	future  *Future
	results <-chan Outcome
}

func normalize(c any) (condition, bool) {
	switch v := c.(type) {
	case Probe:
		return condition{probe: v}, v != nil
	case func(context.Context) (any, error):
		return condition{probe: v}, v != nil
	case func() (any, error):
		if v == nil {
			return condition{}, false
		}
		return condition{probe: func(context.Context) (any, error) { return v() }}, true
	case *Future:
		return condition{future: v}, v != nil
	case <-chan Outcome:
		return condition{results: v}, v != nil
	case chan Outcome:
		return condition{results: v}, v != nil
	default:
		return condition{}, false
	}
}

// Truthy reports whether v counts as a satisfied condition. nil, false, zero
// numbers, empty strings, empty slices and maps, and nil pointers are falsy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String, reflect.Array:
		return rv.Len() != 0
	case reflect.Slice, reflect.Map:
		// an element query that matched nothing keeps the wait polling
		return !rv.IsNil() && rv.Len() != 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

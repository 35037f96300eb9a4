package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/odvcencio/lockstep/pkg/browser"
	"github.com/odvcencio/lockstep/pkg/browser/browsertest"
	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/proxy"
	"github.com/odvcencio/lockstep/pkg/trace"
	"github.com/odvcencio/lockstep/pkg/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(ids ...string) *config.Config {
	cfg := config.DefaultConfig()
	for _, id := range ids {
		cfg.Devices.Set(id, map[string]any{"browser": "chrome"})
	}
	return cfg
}

func newCoordinator(t *testing.T, runtime *browsertest.Runtime, ids ...string) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), testConfig(ids...), runtime)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_OpensSessionsInOrder(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	c := newCoordinator(t, runtime, "B", "A", "C")

	assert.Equal(t, []string{"B", "A", "C"}, c.DeviceIDs())
	assert.Equal(t, []string{"B", "A", "C"}, c.Flow().DeviceIDs())

	opts := runtime.Options()
	require.Len(t, opts, 3)
	assert.Equal(t, "B", opts[0].ID())
	assert.Equal(t, "chrome", opts[0]["browser"])

	log, ok := c.Flow().Device("A")
	require.True(t, ok)
	assert.Equal(t, "A", log.DeviceOptions["id"])
}

func TestNew_SessionFailureClosesOpenedSessions(t *testing.T) {
	offline := errors.New("device offline")
	runtime := browsertest.NewRuntime(nil).FailFor("C", offline)

	_, err := New(context.Background(), testConfig("A", "B", "C"), runtime)
	require.Error(t, err)
	assert.ErrorIs(t, err, offline)
	assert.True(t, lserrors.IsCode(err, lserrors.ErrCodeSessionCreate))
	assert.True(t, runtime.Session("A").Closed())
	assert.True(t, runtime.Session("B").Closed())
	assert.False(t, runtime.Closed(), "runtime stays usable")
}

func TestNew_NoDevices(t *testing.T) {
	_, err := New(context.Background(), config.DefaultConfig(), browsertest.NewRuntime(nil))
	assert.True(t, lserrors.IsCode(err, lserrors.ErrCodeInvalidInput))
}

func TestNew_NavigatesToBaseURL(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	cfg := testConfig("A", "B")
	cfg.BaseURL = "http://app.local"

	c, err := New(context.Background(), cfg, runtime)
	require.NoError(t, err)
	defer c.Close()

	for _, id := range []string{"A", "B"} {
		calls := runtime.Session(id).Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, browser.CommandURL, calls[1].Name)
		assert.Equal(t, []any{"http://app.local"}, calls[1].Args)
	}
	assert.Len(t, c.Flow().Steps(), 4)
}

func TestNew_AppFrameworkHookRunsAfterBaseURL(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	cfg := testConfig("A", "B")
	cfg.BaseURL = "http://app.local"
	cfg.AppFramework = proxy.AppFrameworkXDMVC

	c, err := New(context.Background(), cfg, runtime)
	require.NoError(t, err)
	defer c.Close()

	for _, id := range []string{"A", "B"} {
		assert.Equal(t, []string{browser.CommandScreenshot, browser.CommandURL, browser.CommandExecute},
			runtime.Session(id).CallNames())
	}
	assert.Len(t, c.Flow().Steps(), 4, "hook commands are not recorded")
}

func TestNew_UnknownAppFramework(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	cfg := testConfig("A")
	cfg.AppFramework = "backbone"

	_, err := New(context.Background(), cfg, runtime)
	assert.True(t, lserrors.IsCode(err, lserrors.ErrCodeInvalidInput))
	assert.Empty(t, runtime.Options(), "no session is opened")
}

func TestSelect(t *testing.T) {
	c := newCoordinator(t, browsertest.NewRuntime(nil), "A", "B")

	p, err := c.Select("B")
	require.NoError(t, err)
	assert.Equal(t, "B", p.DeviceID())
	assert.Same(t, c.Flow(), p.Flow())

	_, err = c.Select("Z")
	assert.ErrorIs(t, err, lserrors.ErrUnknownDevice)
}

func TestBroadcast_FailureOnOneDevice(t *testing.T) {
	boom := errors.New("element not found")
	runtime := browsertest.NewRuntime(func(s *browsertest.Session) {
		if s.ID() == "B" {
			s.Fail(browser.CommandClick, boom)
			return
		}
		s.Handle(browser.CommandClick, func(context.Context, ...any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "clicked", nil
		})
	})
	c := newCoordinator(t, runtime, "A", "B")

	results, err := c.Broadcast(context.Background(), browser.CommandClick, "#go")
	require.Error(t, err)

	var be *BroadcastError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"B"}, be.DeviceIDs())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, lserrors.ErrBroadcastFailed)

	require.Len(t, results, 2)
	assert.Equal(t, Result{DeviceID: "A", Value: "clicked"}, results[0])
	assert.Equal(t, "B", results[1].DeviceID)
	assert.Equal(t, 1, runtime.Session("A").Count(browser.CommandClick))
	assert.Equal(t, map[string]any{"A": "clicked"}, results.Values())
}

func TestBroadcast_ResultsInConfigurationOrder(t *testing.T) {
	runtime := browsertest.NewRuntime(func(s *browsertest.Session) {
		id := s.ID()
		delay := map[string]time.Duration{"A": 30 * time.Millisecond, "B": 0, "C": 10 * time.Millisecond}[id]
		s.Handle(browser.CommandGetTitle, func(context.Context, ...any) (any, error) {
			time.Sleep(delay)
			return "title-" + id, nil
		})
	})
	c := newCoordinator(t, runtime, "A", "B", "C")

	results, err := c.Broadcast(context.Background(), browser.CommandGetTitle)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, id := range []string{"A", "B", "C"} {
		assert.Equal(t, id, results[i].DeviceID)
		assert.Equal(t, "title-"+id, results[i].Value)
	}
	res, ok := results.Get("C")
	require.True(t, ok)
	assert.Equal(t, "title-C", res.Value)
}

func TestBroadcast_MaxParallel(t *testing.T) {
	var running, peak atomic.Int32
	runtime := browsertest.NewRuntime(func(s *browsertest.Session) {
		s.Handle(browser.CommandRefresh, func(context.Context, ...any) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
	})
	cfg := testConfig("A", "B", "C", "D")
	cfg.Coordinator.MaxParallel = 1
	c, err := New(context.Background(), cfg, runtime)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Broadcast(context.Background(), browser.CommandRefresh)
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestBroadcast_FailureAbortsPeerWaits(t *testing.T) {
	boom := errors.New("crashed")
	waiter := wait.New(config.WaitConfig{Timeout: 5 * time.Second, Interval: 5 * time.Millisecond})
	runtime := browsertest.NewRuntime(func(s *browsertest.Session) {
		if s.ID() == "B" {
			s.Fail("syncState", boom)
			return
		}
		s.Handle("syncState", func(ctx context.Context, _ ...any) (any, error) {
			return waiter.Until(ctx, func() (any, error) { return false, nil }, 0, 0)
		})
	})
	c := newCoordinator(t, runtime, "A", "B")

	start := time.Now()
	results, err := c.Broadcast(context.Background(), "syncState")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var be *BroadcastError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"A", "B"}, be.DeviceIDs())
	assert.ErrorIs(t, results[0].Err, lserrors.ErrWaitAborted)
	assert.ErrorIs(t, results[1].Err, boom)
}

func TestOn_Subset(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	c := newCoordinator(t, runtime, "A", "B", "C")

	results, err := c.On(context.Background(), []string{"C", "A"}, browser.CommandURL, "http://x")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].DeviceID)
	assert.Equal(t, "C", results[1].DeviceID)
	assert.Zero(t, runtime.Session("B").Count(browser.CommandURL))

	_, err = c.On(context.Background(), []string{"A", "Z"}, browser.CommandURL, "http://x")
	assert.ErrorIs(t, err, lserrors.ErrUnknownDevice)
	assert.Equal(t, 1, runtime.Session("A").Count(browser.CommandURL), "nothing ran")
}

func TestWaitAny_FirstTruthyWins(t *testing.T) {
	c := newCoordinator(t, browsertest.NewRuntime(nil), "A", "B", "C")

	var polls atomic.Int32
	id, value, err := c.WaitAny(context.Background(), func(_ context.Context, p *proxy.Proxy) (any, error) {
		if p.DeviceID() == "B" && polls.Add(1) >= 3 {
			return "ready", nil
		}
		return false, nil
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "B", id)
	assert.Equal(t, "ready", value)

	for _, dev := range c.Flow().Summary() {
		assert.Equal(t, 2, dev.Steps, "waitUntil recorded on %s", dev.DeviceID)
	}
}

func TestWaitAny_AllFail(t *testing.T) {
	c := newCoordinator(t, browsertest.NewRuntime(nil), "A", "B")

	_, _, err := c.WaitAny(context.Background(), func(context.Context, *proxy.Proxy) (any, error) {
		return nil, nil
	}, 30*time.Millisecond, 5*time.Millisecond)

	var be *BroadcastError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"A", "B"}, be.DeviceIDs())
	assert.ErrorIs(t, err, lserrors.ErrWaitTimeout)
}

func TestCheckpoint_AllDevices(t *testing.T) {
	c := newCoordinator(t, browsertest.NewRuntime(nil), "A", "B")
	ctx := context.Background()

	_, err := c.Broadcast(ctx, browser.CommandURL, "http://x")
	require.NoError(t, err)
	results, err := c.Checkpoint(ctx, "home")
	require.NoError(t, err)

	for _, res := range results {
		cp, ok := res.Value.(*trace.Checkpoint)
		require.True(t, ok)
		assert.Equal(t, "home", cp.Name)
		assert.Len(t, cp.Steps, 3)
	}
	assert.Len(t, c.Flow().Steps(), 6)
}

func TestSelect_OnlyCallingDeviceIsSnapshotted(t *testing.T) {
	runtime := browsertest.NewRuntime(nil)
	c := newCoordinator(t, runtime, "A", "B")

	a, err := c.Select("A")
	require.NoError(t, err)
	_, err = a.Execute(context.Background(), browser.CommandClick, "#send")
	require.NoError(t, err)

	summary := c.Flow().Summary()
	assert.Equal(t, 1, summary[0].Snapshots)
	assert.Equal(t, 0, summary[1].Steps)
	assert.Zero(t, runtime.Session("B").Count(browser.CommandScreenshot))
}

type countingStore struct {
	trace.FlowStore
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, f *trace.Flow) error {
	s.saves.Add(1)
	return s.FlowStore.Save(ctx, f)
}

func TestEnd_PersistsOnceAndReleasesRuntime(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{FlowStore: trace.NewFileStore(afero.NewMemMapFs(), "/flows")}
	runtime := browsertest.NewRuntime(nil)
	c, err := New(ctx, testConfig("A", "B", "C"), runtime, WithStore(store))
	require.NoError(t, err)

	_, err = c.Broadcast(ctx, browser.CommandClick, "#go")
	require.NoError(t, err)
	require.NoError(t, c.End(ctx))
	require.NoError(t, c.End(ctx))

	assert.Equal(t, int32(1), store.saves.Load())
	assert.True(t, runtime.Closed())
	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, 1, runtime.Session(id).Count(browser.CommandEnd))
		assert.True(t, runtime.Session(id).Closed())
	}

	loaded, err := store.Load(ctx, c.Flow().ID())
	require.NoError(t, err)
	assert.Len(t, loaded.Steps(), 6)
	assert.Equal(t, []string{"A", "B", "C"}, loaded.DeviceIDs())
}

func TestBroadcast_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	c, err := New(context.Background(), testConfig("A", "B"), browsertest.NewRuntime(nil),
		WithTracer(provider.Tracer("test")))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Broadcast(context.Background(), browser.CommandRefresh)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	root := spans[2]
	assert.Equal(t, "coordinator.broadcast", root.Name())
	for _, child := range spans[:2] {
		assert.Equal(t, "proxy.refresh", child.Name())
		assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	}
}

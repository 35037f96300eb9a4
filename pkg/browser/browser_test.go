package browser_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/lockstep/pkg/browser"
	"github.com/odvcencio/lockstep/pkg/browser/browsertest"
)

func TestDeviceOptions_WithIDCopies(t *testing.T) {
	opts := browser.DeviceOptions{"browser": "chrome"}
	withID := opts.WithID("A")

	assert.Equal(t, "A", withID.ID())
	assert.Empty(t, opts.ID(), "original options stay untouched")
	assert.Equal(t, "chrome", withID["browser"])
}

func TestLookup(t *testing.T) {
	kind, ok := browser.Lookup(browser.CommandGetText)
	require.True(t, ok)
	assert.Equal(t, browser.KindProperty, kind)

	kind, ok = browser.Lookup(browser.CommandURL)
	require.True(t, ok)
	assert.Equal(t, browser.KindNavigation, kind)

	_, ok = browser.Lookup("teleport")
	assert.False(t, ok)
}

func TestSnapshotBytes(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}

	got, err := browser.SnapshotBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = browser.SnapshotBytes(&browser.Frame{Format: browser.FrameFormatPNG, Data: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = browser.SnapshotBytes(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = browser.SnapshotBytes(nil)
	assert.ErrorIs(t, err, browser.ErrEmptySnapshot)

	_, err = browser.SnapshotBytes(42)
	assert.Error(t, err)
}

func TestDriverError(t *testing.T) {
	err := browser.WrapDriverError(browser.DriverCodeTimeout, "click", "element not reachable", browser.ErrOperationTimeout)
	assert.ErrorIs(t, err, browser.ErrOperationTimeout)
	assert.True(t, browser.IsRetryableError(err))
	assert.False(t, browser.IsConnectionError(err))
	assert.Contains(t, err.Error(), "click")

	lost := browser.NewDriverError(browser.DriverCodeConnectionLost, "url", "socket closed")
	assert.True(t, browser.IsConnectionError(lost))
	assert.False(t, browser.IsRetryableError(errors.New("other")))
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rt := browsertest.NewRuntime(nil)
	m := browser.NewManager(rt)

	a, err := m.CreateSession(ctx, "A", browser.DeviceOptions{"browser": "chrome"})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "B", nil)
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, "A", nil)
	assert.ErrorIs(t, err, browser.ErrSessionExists)

	assert.Equal(t, "A", a.ID())
	assert.Equal(t, []string{"A", "B"}, m.DeviceIDs())
	assert.Equal(t, "A", rt.Options()[0].ID())

	got, ok := m.GetSession("B")
	require.True(t, ok)
	assert.Equal(t, "B", got.ID())

	require.NoError(t, m.CloseSession("B"))
	assert.ErrorIs(t, m.CloseSession("B"), browser.ErrSessionClosed)
	assert.True(t, rt.Session("B").Closed())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, rt.Session("A").Closed())
	assert.True(t, rt.Closed())

	_, err = m.CreateSession(ctx, "C", nil)
	assert.ErrorIs(t, err, browser.ErrUnavailable)
}

func TestManager_CloseSessionsKeepsRuntime(t *testing.T) {
	rt := browsertest.NewRuntime(nil)
	m := browser.NewManager(rt)
	_, err := m.CreateSession(context.Background(), "A", nil)
	require.NoError(t, err)

	require.NoError(t, m.CloseSessions())
	assert.Empty(t, m.DeviceIDs())
	assert.False(t, rt.Closed())
}

func TestFakeSession_Scripting(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := browsertest.NewSession("A").
		Return(browser.CommandGetText, "hello").
		Fail(browser.CommandClick, boom)

	v, err := s.Execute(ctx, browser.CommandGetText, "#title")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = s.Execute(ctx, browser.CommandClick, "#go")
	assert.ErrorIs(t, err, boom)

	first, err := s.Execute(ctx, browser.CommandScreenshot)
	require.NoError(t, err)
	second, err := s.Execute(ctx, browser.CommandScreenshot)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.Equal(t, []string{"getText", "click", "screenshot", "screenshot"}, s.CallNames())
	assert.Equal(t, 2, s.Count(browser.CommandScreenshot))

	require.NoError(t, s.Close())
	_, err = s.Execute(ctx, browser.CommandURL, "http://x")
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	var driverErr *browser.DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, browser.DriverCodeSessionClosed, driverErr.Code)
	assert.Equal(t, browser.CommandURL, driverErr.Command)
	assert.False(t, browser.IsRetryableError(err))
}

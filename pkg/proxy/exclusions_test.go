package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odvcencio/lockstep/pkg/browser"
)

func TestExcluded(t *testing.T) {
	tests := []struct {
		name   string
		reason string
	}{
		{browser.CommandElements, ReasonProtocolQuery},
		{browser.CommandIsExisting, ReasonStateQuery},
		{browser.CommandSetCookie, ReasonCookie},
		{browser.CommandGetURL, ReasonPropertyQuery},
		{browser.CommandEndAll, ReasonLifecycle},
		{browser.CommandTimeouts, ReasonNoSideEffects},
		{browser.CommandElementIDValue, ReasonInternalElement},
		{CommandCheckpoint, ReasonRecording},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := Excluded(tt.name)
			assert.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}

	for _, name := range []string{browser.CommandClick, browser.CommandURL, browser.CommandWaitUntil, "customGesture"} {
		_, ok := Excluded(name)
		assert.False(t, ok, name)
	}
}

func TestExcluded_FollowsCatalogueKinds(t *testing.T) {
	for name, kind := range browser.Catalogue {
		_, excluded := Excluded(name)
		recorded := kind == browser.KindAction || kind == browser.KindNavigation
		assert.Equal(t, !recorded, excluded, "%s (%s)", name, kind)
	}
	reason, ok := Excluded(browser.CommandElementIDClick)
	assert.True(t, ok)
	assert.Equal(t, ReasonInternalElement, reason)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		want string
		name string
		args []any
	}{
		{"click", "click", nil},
		{"url('http://x')", "url", []any{"http://x"}},
		{"pause(500)", "pause", []any{500}},
		{"scroll(1.5)", "scroll", []any{1.5}},
		{"toggle(true)", "toggle", []any{true}},
		{"setValue('#name')", "setValue", []any{"#name", "Ada"}},
		{"execute", "execute", []any{func() {}}},
		{"keys", "keys", []any{[]string{"Enter"}}},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.name, tt.args...))
		})
	}
}

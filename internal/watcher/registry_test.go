package watcher

import (
	"testing"

	"activity-agent/internal/wayland"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) *toplevelRegistry {
	t.Helper()
	return newToplevelRegistry(zaptest.NewLogger(t))
}

func TestRegistryNewToplevelStartsUnknown(t *testing.T) {
	r := newTestRegistry(t)

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@10"})

	require.Contains(t, r.windows, "toplevel@10")
	assert.Equal(t, "unknown", r.windows["toplevel@10"].appID)
	assert.Equal(t, "unknown", r.windows["toplevel@10"].title)
	assert.Empty(t, r.currentWindowID)
}

func TestRegistryPropertyUpdates(t *testing.T) {
	r := newTestRegistry(t)
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@10"})

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventTitle, ID: "toplevel@10", Title: "inbox"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventAppID, ID: "toplevel@10", AppID: "org.mozilla.firefox"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventDone, ID: "toplevel@10"})

	assert.Equal(t, "inbox", r.windows["toplevel@10"].title)
	assert.Equal(t, "org.mozilla.firefox", r.windows["toplevel@10"].appID)
}

func TestRegistryUnknownWindowEventsDropped(t *testing.T) {
	r := newTestRegistry(t)

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventTitle, ID: "toplevel@99", Title: "ghost"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventAppID, ID: "toplevel@99", AppID: "ghost"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@99", States: []uint32{wayland.StateActivated}})

	assert.Empty(t, r.windows)
	assert.Empty(t, r.currentWindowID, "activation of an unknown window must not set focus")
}

func TestRegistryActivationOverwritesFocus(t *testing.T) {
	r := newTestRegistry(t)
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@1"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@2"})

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@1", States: []uint32{wayland.StateActivated}})
	assert.Equal(t, "toplevel@1", r.currentWindowID)

	// No deactivation event arrives for toplevel@1; the new activation
	// replaces it unconditionally
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@2", States: []uint32{3, wayland.StateActivated}})
	assert.Equal(t, "toplevel@2", r.currentWindowID)
}

func TestRegistryNonActivatedStateIgnored(t *testing.T) {
	r := newTestRegistry(t)
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@1"})

	// Maximized and fullscreen bits without activated
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@1", States: []uint32{0, 3}})

	assert.Empty(t, r.currentWindowID)
}

func TestRegistryClosedRemovesRecord(t *testing.T) {
	r := newTestRegistry(t)
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@1"})

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventClosed, ID: "toplevel@1"})
	assert.Empty(t, r.windows)

	// Duplicate close is benign
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventClosed, ID: "toplevel@1"})
	assert.Empty(t, r.windows)
}

func TestRegistryClosingFocusedWindowLeavesDanglingReference(t *testing.T) {
	r := newTestRegistry(t)
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@1"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@1", States: []uint32{wayland.StateActivated}})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventClosed, ID: "toplevel@1"})

	assert.Equal(t, "toplevel@1", r.currentWindowID, "focus reference is kept until the next activation")

	_, err := r.activeWindow()
	assert.ErrorIs(t, err, ErrWindowNotFound)

	// Next activation repairs the reference
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@2"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@2", States: []uint32{wayland.StateActivated}})

	window, err := r.activeWindow()
	require.NoError(t, err)
	assert.Equal(t, "unknown", window.appID)
}

func TestRegistryActiveWindow(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.activeWindow()
	assert.ErrorIs(t, err, ErrNoActiveWindow)

	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventNewToplevel, ID: "toplevel@5"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventTitle, ID: "toplevel@5", Title: "shell"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventAppID, ID: "toplevel@5", AppID: "org.gnome.Terminal"})
	r.Apply(wayland.ToplevelEvent{Kind: wayland.EventState, ID: "toplevel@5", States: []uint32{wayland.StateActivated}})

	window, err := r.activeWindow()
	require.NoError(t, err)
	assert.Equal(t, "org.gnome.Terminal", window.appID)
	assert.Equal(t, "shell", window.title)
}

func TestRegistryEventFold(t *testing.T) {
	r := newTestRegistry(t)

	events := []wayland.ToplevelEvent{
		{Kind: wayland.EventNewToplevel, ID: "toplevel@1"},
		{Kind: wayland.EventAppID, ID: "toplevel@1", AppID: "editor"},
		{Kind: wayland.EventTitle, ID: "toplevel@1", Title: "main.go"},
		{Kind: wayland.EventDone, ID: "toplevel@1"},
		{Kind: wayland.EventNewToplevel, ID: "toplevel@2"},
		{Kind: wayland.EventState, ID: "toplevel@1", States: []uint32{wayland.StateActivated}},
		{Kind: wayland.EventTitle, ID: "toplevel@2", Title: "browser"},
		{Kind: wayland.EventClosed, ID: "toplevel@2"},
		{Kind: wayland.EventTitle, ID: "toplevel@1", Title: "registry.go"},
	}
	for _, ev := range events {
		r.Apply(ev)
	}

	require.Len(t, r.windows, 1)
	assert.Equal(t, "toplevel@1", r.currentWindowID)
	assert.Equal(t, "registry.go", r.windows["toplevel@1"].title)
	assert.Equal(t, "editor", r.windows["toplevel@1"].appID)
}

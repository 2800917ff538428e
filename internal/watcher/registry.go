package watcher

import (
	"errors"

	"activity-agent/internal/wayland"

	"go.uber.org/zap"
)

const unknownValue = "unknown"

var (
	// ErrNoActiveWindow means no window has been observed as focused yet
	ErrNoActiveWindow = errors.New("current window is unknown")
	// ErrWindowNotFound means the focused window ID no longer has a record;
	// an activated window was closed before the next activation arrived
	ErrWindowNotFound = errors.New("current window is not found by its ID")
)

type windowRecord struct {
	appID string
	title string
}

// toplevelRegistry is the fold state of the window-management event stream:
// every open window keyed by its protocol handle ID, plus the ID last seen
// activated. currentWindowID may transiently reference a removed window when
// an activation and a close race on the same tick; reporting treats that as
// ErrWindowNotFound rather than clearing it.
type toplevelRegistry struct {
	windows         map[string]*windowRecord
	currentWindowID string
	logger          *zap.Logger
}

func newToplevelRegistry(logger *zap.Logger) *toplevelRegistry {
	return &toplevelRegistry{
		windows: make(map[string]*windowRecord),
		logger:  logger,
	}
}

// Apply folds one protocol event into the registry
func (r *toplevelRegistry) Apply(ev wayland.ToplevelEvent) {
	if ev.Kind == wayland.EventNewToplevel {
		r.logger.Debug("Toplevel handle received", zap.String("id", ev.ID))
		r.windows[ev.ID] = &windowRecord{
			appID: unknownValue,
			title: unknownValue,
		}
		return
	}

	if ev.Kind == wayland.EventClosed {
		if _, ok := r.windows[ev.ID]; !ok {
			r.logger.Warn("Window is already removed", zap.String("id", ev.ID))
			return
		}
		r.logger.Debug("Window closed", zap.String("id", ev.ID))
		delete(r.windows, ev.ID)
		return
	}

	window, ok := r.windows[ev.ID]
	if !ok {
		r.logger.Warn("Event for unknown window",
			zap.String("id", ev.ID),
			zap.Stringer("kind", ev.Kind),
		)
		return
	}

	switch ev.Kind {
	case wayland.EventTitle:
		r.logger.Debug("Title changed",
			zap.String("id", ev.ID),
			zap.String("title", ev.Title),
		)
		window.title = ev.Title
	case wayland.EventAppID:
		r.logger.Debug("App ID changed",
			zap.String("id", ev.ID),
			zap.String("app_id", ev.AppID),
		)
		window.appID = ev.AppID
	case wayland.EventState:
		if ev.Activated() {
			r.logger.Debug("Window activated", zap.String("id", ev.ID))
			r.currentWindowID = ev.ID
		}
	case wayland.EventDone:
		// End of this window's property batch
	}
}

// activeWindow resolves the focused window's record
func (r *toplevelRegistry) activeWindow() (*windowRecord, error) {
	if r.currentWindowID == "" {
		return nil, ErrNoActiveWindow
	}
	window, ok := r.windows[r.currentWindowID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return window, nil
}

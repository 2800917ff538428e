package watcher

import (
	"errors"
	"fmt"
	"time"

	"activity-agent/internal/config"
	"activity-agent/internal/wayland"

	"go.uber.org/zap"
)

// ToplevelWatcher tracks window focus through the compositor's
// foreign-toplevel protocol and periodically reports the focused window
type ToplevelWatcher struct {
	conn         *wayland.Connection
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewToplevelWatcher establishes the compositor session and binds the
// toplevel manager global. Fails fast when the session cannot be established
// or the compositor does not support the protocol.
func NewToplevelWatcher(cfg *config.Config, logger *zap.Logger) (*ToplevelWatcher, error) {
	log := logger.Named("toplevel")

	conn, err := wayland.Connect(log)
	if err != nil {
		return nil, fmt.Errorf("failed to establish compositor session: %w", err)
	}

	if err := conn.BindToplevelManager(); err != nil {
		conn.Close()
		return nil, err
	}

	return &ToplevelWatcher{
		conn:         conn,
		pollInterval: cfg.PollIntervalWindow(),
		logger:       log,
	}, nil
}

// Watch runs the observation loop forever. Per-tick errors are logged and
// the loop continues; only a torn-down protocol session ends it.
func (w *ToplevelWatcher) Watch(client ReportClient) error {
	registry := newToplevelRegistry(w.logger)

	// Drain pending events once so the first report sees the initial
	// window list
	if err := w.conn.Roundtrip(registry.Apply); err != nil {
		return err
	}

	w.logger.Info("Starting foreign toplevel watcher",
		zap.Duration("poll_interval", w.pollInterval),
	)

	for {
		if err := w.conn.Roundtrip(registry.Apply); err != nil {
			if isSessionFatal(err) {
				w.logger.Error("Compositor session ended", zap.Error(err))
				return err
			}
			w.logger.Error("Event queue is not processed", zap.Error(err))
		} else if err := w.reportActiveWindow(registry, client); err != nil {
			w.logger.Error("Error on watcher iteration", zap.Error(err))
		}

		time.Sleep(w.pollInterval)
	}
}

func (w *ToplevelWatcher) reportActiveWindow(registry *toplevelRegistry, client ReportClient) error {
	window, err := registry.activeWindow()
	if err != nil {
		return err
	}

	if err := client.SendActiveWindow(window.appID, window.title); err != nil {
		return fmt.Errorf("failed to send heartbeat for active window: %w", err)
	}
	return nil
}

func isSessionFatal(err error) bool {
	return errors.Is(err, wayland.ErrManagerFinished) ||
		errors.Is(err, wayland.ErrConnectionClosed)
}

package idle

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// GNOME Mutter idle monitor D-Bus identity
const (
	idleMonitorDestination = "org.gnome.Mutter.IdleMonitor"
	idleMonitorObjectPath  = "/org/gnome/Mutter/IdleMonitor/Core"
	idleMonitorMethod      = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

// MutterSource reads the idle counter from GNOME Mutter's IdleMonitor,
// which works on Wayland sessions where the X screensaver extension does not
type MutterSource struct {
	conn   *dbus.Conn
	object dbus.BusObject
	logger *zap.Logger
}

// NewMutterSource connects to the session bus and verifies the idle monitor
// answers with one trial read
func NewMutterSource(logger *zap.Logger) (*MutterSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	source := &MutterSource{
		conn:   conn,
		object: conn.Object(idleMonitorDestination, idleMonitorObjectPath),
		logger: logger,
	}

	if _, err := source.SecondsSinceLastInput(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("idle monitor not responding: %w", err)
	}

	return source, nil
}

// SecondsSinceLastInput returns whole seconds since the last user input
func (s *MutterSource) SecondsSinceLastInput() (uint32, error) {
	var idleMs uint64
	if err := s.object.Call(idleMonitorMethod, 0).Store(&idleMs); err != nil {
		return 0, fmt.Errorf("failed to query idle monitor: %w", err)
	}
	return uint32(idleMs / 1000), nil
}

// Close shuts the bus connection down
func (s *MutterSource) Close() error {
	return s.conn.Close()
}

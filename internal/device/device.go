package device

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// Manager resolves a stable identifier for this machine, used to suffix
// collector bucket names
type Manager struct{}

// NewManager creates a new device manager
func NewManager() *Manager {
	return &Manager{}
}

// GetOrGenerateID returns the configured ID when set, otherwise derives one
// from the machine, falling back to a random UUID
func (m *Manager) GetOrGenerateID(existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}

	if id := machineID(); id != "" {
		return id, nil
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname, nil
	}

	return uuid.New().String(), nil
}

// Hostname returns the machine hostname, or "unknown" when unavailable.
// Collector bucket IDs embed this value.
func (m *Manager) Hostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

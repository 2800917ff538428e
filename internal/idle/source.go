package idle

import (
	"fmt"
	"os"

	"activity-agent/internal/x11"

	"go.uber.org/zap"
)

// Source is an OS idle-time counter
type Source interface {
	// SecondsSinceLastInput returns whole seconds since the last user input
	SecondsSinceLastInput() (uint32, error)
	Close() error
}

// NewSource picks the first working idle counter: the X11 screensaver
// extension when a display is available, otherwise the Mutter idle monitor
// over D-Bus. The returned source has been verified with one trial read.
func NewSource(logger *zap.Logger) (Source, error) {
	if os.Getenv("DISPLAY") != "" {
		source, err := x11.New(logger)
		if err != nil {
			logger.Debug("X11 idle counter unavailable", zap.Error(err))
		} else if _, err := source.SecondsSinceLastInput(); err != nil {
			logger.Debug("X11 idle counter not responding", zap.Error(err))
			source.Close()
		} else {
			logger.Info("Using X11 screensaver idle counter")
			return source, nil
		}
	}

	source, err := NewMutterSource(logger)
	if err != nil {
		return nil, fmt.Errorf("no idle counter available: %w", err)
	}

	logger.Info("Using Mutter idle monitor")
	return source, nil
}

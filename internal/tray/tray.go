package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

// Tray shows a status icon with a quit action. Optional; the agent runs
// headless when disabled.
type Tray struct {
	logger   *zap.Logger
	onQuit   func()
	quitOnce sync.Once
}

// New creates a tray controller. onQuit is invoked once when the user picks
// Quit from the menu.
func New(logger *zap.Logger, onQuit func()) *Tray {
	return &Tray{
		logger: logger,
		onQuit: onQuit,
	}
}

// Run enters the tray event loop and blocks until Quit is called
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the tray down
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Activity Agent")
	systray.SetTooltip("Reporting desktop activity")

	quitItem := systray.AddMenuItem("Quit", "Stop reporting and exit")
	go func() {
		<-quitItem.ClickedCh
		t.logger.Info("Quit requested from tray")
		t.quitOnce.Do(t.onQuit)
		systray.Quit()
	}()
}

func (t *Tray) onExit() {
	t.logger.Debug("Tray stopped")
}

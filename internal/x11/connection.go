package x11

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"
)

// Connection reads the user-input idle counter from the X server's
// MIT-SCREEN-SAVER extension
type Connection struct {
	conn   *xgb.Conn
	root   xproto.Drawable
	logger *zap.Logger
}

// New connects to the X server named by DISPLAY and initializes the
// screensaver extension. Fails when the server is unreachable or the
// extension is missing.
func New(logger *zap.Logger) (*Connection, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("screensaver extension unavailable: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	logger.Debug("X11 session established",
		zap.Uint32("root", uint32(screen.Root)),
	)

	return &Connection{
		conn:   conn,
		root:   xproto.Drawable(screen.Root),
		logger: logger,
	}, nil
}

// SecondsSinceLastInput returns how many whole seconds have passed since the
// user last produced input
func (c *Connection) SecondsSinceLastInput() (uint32, error) {
	reply, err := screensaver.QueryInfo(c.conn, c.root).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query idle time: %w", err)
	}
	return reply.MsSinceUserInput / 1000, nil
}

// Close shuts the X connection down
func (c *Connection) Close() error {
	c.conn.Close()
	return nil
}

package wayland

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// wl_display lives at object ID 1 in every connection
const displayObjectID = 1

// wl_display requests
const (
	displayRequestSync        = 0
	displayRequestGetRegistry = 1
)

// wl_display events
const (
	displayEventError    = 0
	displayEventDeleteID = 1
)

// wl_registry request bind and events
const (
	registryRequestBind       = 0
	registryEventGlobal       = 0
	registryEventGlobalRemove = 1
)

// wl_callback event done
const callbackEventDone = 0

var (
	// ErrManagerUnavailable means the compositor does not advertise the
	// foreign-toplevel manager global
	ErrManagerUnavailable = errors.New("compositor does not support " + toplevelManagerInterface)
	// ErrManagerFinished means the compositor tore the manager session down;
	// no further window events will arrive
	ErrManagerFinished = errors.New("foreign toplevel manager finished")
	// ErrConnectionClosed means the compositor hung up
	ErrConnectionClosed = errors.New("compositor closed the connection")
)

type global struct {
	name    uint32
	version uint32
}

// Connection is a minimal Wayland client session carrying exactly the
// objects the toplevel watcher needs: the display, the registry, one
// foreign-toplevel manager and its window handles. It is owned by a single
// watcher loop and is not safe for concurrent use.
type Connection struct {
	fd     int
	logger *zap.Logger

	nextID     uint32
	registryID uint32
	managerID  uint32

	globals   map[string]global
	handles   map[uint32]bool
	callbacks map[uint32]bool

	readBuf  []byte
	finished bool
}

// Connect establishes a session with the compositor named by WAYLAND_DISPLAY
// and retrieves the registry globals
func Connect(logger *zap.Logger) (*Connection, error) {
	path, err := socketPath()
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to connect to compositor at %s: %w", path, err)
	}

	c := &Connection{
		fd:        fd,
		logger:    logger,
		nextID:    displayObjectID + 1,
		globals:   make(map[string]global),
		handles:   make(map[uint32]bool),
		callbacks: make(map[uint32]bool),
	}

	c.registryID = c.allocateID()
	if err := c.write(newRequest(displayObjectID, displayRequestGetRegistry).
		putUint32(c.registryID).
		bytes()); err != nil {
		c.Close()
		return nil, err
	}

	// Collect the initial burst of registry globals
	if err := c.Roundtrip(nil); err != nil {
		c.Close()
		return nil, err
	}

	logger.Debug("Wayland session established",
		zap.String("socket", path),
		zap.Int("globals", len(c.globals)),
	)

	return c, nil
}

func socketPath() (string, error) {
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set, cannot locate Wayland socket")
	}
	return filepath.Join(runtimeDir, display), nil
}

// BindToplevelManager binds the foreign-toplevel manager global. Must be
// called once before dispatching window events.
func (c *Connection) BindToplevelManager() error {
	g, ok := c.globals[toplevelManagerInterface]
	if !ok {
		return ErrManagerUnavailable
	}

	version := g.version
	if version > toplevelManagerVersion {
		version = toplevelManagerVersion
	}

	c.managerID = c.allocateID()
	// bind's new_id argument is written with explicit interface and version
	if err := c.write(newRequest(c.registryID, registryRequestBind).
		putUint32(g.name).
		putString(toplevelManagerInterface).
		putUint32(version).
		putUint32(c.managerID).
		bytes()); err != nil {
		return err
	}

	c.logger.Debug("Bound toplevel manager",
		zap.Uint32("name", g.name),
		zap.Uint32("version", version),
	)

	return nil
}

// Roundtrip flushes a sync request and dispatches every event the compositor
// has pending, invoking handler for each decoded toplevel event, until the
// sync callback fires. A nil handler drops toplevel events.
func (c *Connection) Roundtrip(handler func(ToplevelEvent)) error {
	if c.finished {
		return ErrManagerFinished
	}

	callbackID := c.allocateID()
	c.callbacks[callbackID] = true

	if err := c.write(newRequest(displayObjectID, displayRequestSync).
		putUint32(callbackID).
		bytes()); err != nil {
		return err
	}

	for c.callbacks[callbackID] {
		msg, ok, err := c.nextMessage()
		if err != nil {
			return err
		}
		if !ok {
			if err := c.fill(); err != nil {
				return err
			}
			continue
		}
		if err := c.dispatch(msg, handler); err != nil {
			return err
		}
	}

	if c.finished {
		return ErrManagerFinished
	}
	return nil
}

// Close tears the session down
func (c *Connection) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *Connection) allocateID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

func (c *Connection) write(data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			return fmt.Errorf("failed to write to compositor: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// nextMessage pops one complete message off the read buffer
func (c *Connection) nextMessage() (message, bool, error) {
	msg, consumed, err := parseMessage(c.readBuf)
	if err != nil {
		return message{}, false, err
	}
	if consumed == 0 {
		return message{}, false, nil
	}
	c.readBuf = c.readBuf[consumed:]
	return msg, true, nil
}

// fill blocks until the compositor sends more data. Ancillary file
// descriptors belong to events we never bind to; they are closed on arrival
// so they cannot leak.
func (c *Connection) fill() error {
	buf := make([]byte, 4096)
	oob := make([]byte, 256)

	n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, 0)
	if err != nil {
		return fmt.Errorf("failed to read from compositor: %w", err)
	}
	if n == 0 {
		return ErrConnectionClosed
	}

	if oobn > 0 {
		c.closeAncillaryFds(oob[:oobn])
	}

	c.readBuf = append(c.readBuf, buf[:n]...)
	return nil
}

func (c *Connection) closeAncillaryFds(oob []byte) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		c.logger.Debug("Failed to parse control message", zap.Error(err))
		return
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			unix.Close(fd)
		}
	}
}

func (c *Connection) dispatch(msg message, handler func(ToplevelEvent)) error {
	switch {
	case msg.objectID == displayObjectID:
		return c.dispatchDisplay(msg)
	case msg.objectID == c.registryID:
		return c.dispatchRegistry(msg)
	case c.callbacks[msg.objectID]:
		if msg.opcode == callbackEventDone {
			delete(c.callbacks, msg.objectID)
		}
		return nil
	case msg.objectID == c.managerID && c.managerID != 0:
		return c.dispatchManager(msg, handler)
	case c.handles[msg.objectID]:
		return c.dispatchHandle(msg, handler)
	default:
		// Events may still arrive for objects we already destroyed
		c.logger.Debug("Event for unknown object",
			zap.Uint32("object_id", msg.objectID),
			zap.Uint16("opcode", msg.opcode),
		)
		return nil
	}
}

func (c *Connection) dispatchDisplay(msg message) error {
	switch msg.opcode {
	case displayEventError:
		r := newArgReader(msg.payload)
		objectID := r.uint32()
		code := r.uint32()
		text := r.str()
		if r.err != nil {
			return fmt.Errorf("malformed display error event: %w", r.err)
		}
		return fmt.Errorf("compositor protocol error on object %d (code %d): %s", objectID, code, text)
	case displayEventDeleteID:
		r := newArgReader(msg.payload)
		id := r.uint32()
		delete(c.handles, id)
		delete(c.callbacks, id)
	}
	return nil
}

func (c *Connection) dispatchRegistry(msg message) error {
	r := newArgReader(msg.payload)
	switch msg.opcode {
	case registryEventGlobal:
		name := r.uint32()
		iface := r.str()
		version := r.uint32()
		if r.err != nil {
			return fmt.Errorf("malformed registry global event: %w", r.err)
		}
		c.globals[iface] = global{name: name, version: version}
	case registryEventGlobalRemove:
		name := r.uint32()
		if r.err != nil {
			return fmt.Errorf("malformed registry global_remove event: %w", r.err)
		}
		for iface, g := range c.globals {
			if g.name == name {
				delete(c.globals, iface)
				break
			}
		}
	}
	return nil
}

func (c *Connection) dispatchManager(msg message, handler func(ToplevelEvent)) error {
	switch msg.opcode {
	case managerEventToplevel:
		r := newArgReader(msg.payload)
		handleID := r.uint32()
		if r.err != nil {
			return fmt.Errorf("malformed toplevel event: %w", r.err)
		}
		c.handles[handleID] = true
		c.emit(handler, ToplevelEvent{Kind: EventNewToplevel, ID: toplevelID(handleID)})
	case managerEventFinished:
		c.finished = true
	}
	return nil
}

func (c *Connection) dispatchHandle(msg message, handler func(ToplevelEvent)) error {
	id := toplevelID(msg.objectID)
	r := newArgReader(msg.payload)

	switch msg.opcode {
	case handleEventTitle:
		title := r.str()
		if r.err != nil {
			return fmt.Errorf("malformed title event for %s: %w", id, r.err)
		}
		c.emit(handler, ToplevelEvent{Kind: EventTitle, ID: id, Title: title})
	case handleEventAppID:
		appID := r.str()
		if r.err != nil {
			return fmt.Errorf("malformed app_id event for %s: %w", id, r.err)
		}
		c.emit(handler, ToplevelEvent{Kind: EventAppID, ID: id, AppID: appID})
	case handleEventState:
		states := r.uint32Array()
		if r.err != nil {
			return fmt.Errorf("malformed state event for %s: %w", id, r.err)
		}
		c.emit(handler, ToplevelEvent{Kind: EventState, ID: id, States: states})
	case handleEventDone:
		c.emit(handler, ToplevelEvent{Kind: EventDone, ID: id})
	case handleEventClosed:
		c.emit(handler, ToplevelEvent{Kind: EventClosed, ID: id})
		// Release the server-side resource. Events already in flight for
		// this handle land in the unknown-object path, which is benign.
		if err := c.write(newRequest(msg.objectID, handleRequestDestroy).bytes()); err != nil {
			return err
		}
		delete(c.handles, msg.objectID)
	case handleEventOutputEnter, handleEventOutputLeave, handleEventParent:
		// Not used for focus tracking
	}
	return nil
}

func (c *Connection) emit(handler func(ToplevelEvent), ev ToplevelEvent) {
	if handler != nil {
		handler(ev)
	}
}

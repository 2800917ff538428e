package wayland

import "fmt"

// Protocol identity of the wlr foreign-toplevel manager global
const (
	toplevelManagerInterface = "zwlr_foreign_toplevel_manager_v1"
	toplevelManagerVersion   = 3
)

// zwlr_foreign_toplevel_manager_v1 events
const (
	managerEventToplevel = 0
	managerEventFinished = 1
)

// zwlr_foreign_toplevel_handle_v1 events
const (
	handleEventTitle       = 0
	handleEventAppID       = 1
	handleEventOutputEnter = 2
	handleEventOutputLeave = 3
	handleEventState       = 4
	handleEventDone        = 5
	handleEventClosed      = 6
	handleEventParent      = 7
)

// zwlr_foreign_toplevel_handle_v1 requests
const handleRequestDestroy = 7

// StateActivated is the handle state bit meaning the toplevel holds focus
const StateActivated uint32 = 2

// ToplevelEventKind discriminates ToplevelEvent values
type ToplevelEventKind int

const (
	// EventNewToplevel announces a window handle; its properties follow
	EventNewToplevel ToplevelEventKind = iota
	// EventTitle carries a changed window title
	EventTitle
	// EventAppID carries a changed application identifier
	EventAppID
	// EventState carries the full new state set of a window
	EventState
	// EventDone marks the end of one window's property batch
	EventDone
	// EventClosed signals the window no longer exists
	EventClosed
)

func (k ToplevelEventKind) String() string {
	switch k {
	case EventNewToplevel:
		return "new_toplevel"
	case EventTitle:
		return "title"
	case EventAppID:
		return "app_id"
	case EventState:
		return "state"
	case EventDone:
		return "done"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ToplevelEvent is one decoded window-management event. ID is the stable
// handle identity assigned by the protocol session.
type ToplevelEvent struct {
	Kind   ToplevelEventKind
	ID     string
	Title  string
	AppID  string
	States []uint32
}

// Activated reports whether a state event's state set includes the
// activated bit
func (e ToplevelEvent) Activated() bool {
	for _, s := range e.States {
		if s == StateActivated {
			return true
		}
	}
	return false
}

func toplevelID(objectID uint32) string {
	return fmt.Sprintf("toplevel@%d", objectID)
}

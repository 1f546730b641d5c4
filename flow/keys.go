package flow

import (
	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
)

// Key is a key press, named like the bubbletea key strings.
type Key string

const (
	KeyDown     Key = "down"
	KeyUp       Key = "up"
	KeyPageDown Key = "pgdown"
	KeyPageUp   Key = "pgup"
	KeyCallFlow Key = "x"
	KeyCallRaw  Key = "r"
	KeyMsgRaw   Key = "enter"
	KeyHelp     Key = "f1"
	KeyColors   Key = "c"
)

// ActionKind is a view switch requested by a handled key.
type ActionKind int

const (
	// ActionNone means the session state changed in place, a redraw is enough.
	ActionNone ActionKind = iota
	// ActionShowCallFlow asks to show the single call flow of [Action.Call].
	ActionShowCallFlow
	// ActionShowCallRaw asks to show all messages of [Action.Call] in raw mode.
	ActionShowCallRaw
	// ActionShowMessageRaw asks to show [Action.Message] in raw mode.
	ActionShowMessageRaw
	// ActionToggleHelp asks to show or hide the help screen, see [Session.HelpVisible].
	ActionToggleHelp
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionShowCallFlow:
		return "show_call_flow"
	case ActionShowCallRaw:
		return "show_call_raw"
	case ActionShowMessageRaw:
		return "show_message_raw"
	case ActionToggleHelp:
		return "toggle_help"
	default:
		return "unknown"
	}
}

// Action is a result of a handled key.
type Action struct {
	Kind    ActionKind
	Call    *calls.Call
	Message *capture.Record
}

// HelpText describes the session keys.
const HelpText = `This window shows the messages of a call and its correlated call
ordered by capture time.
It is mostly used when capturing on proxies that relay requests
between an incoming and an outgoing call.

Available keys:
F1          Show this screen.
q/Esc       Go back to the call list.
c           Turn call colours on/off.
Up/Down     Move to the previous/next message.
PgUp/PgDn   Move one page up/down.
x           Show the call flow of the first call.
r           Show the current leg messages in raw mode.
Enter       Show the current message in raw mode.`

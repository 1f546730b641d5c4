package flow

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/internal/log"
)

// DefaultPageSteps is a number of single steps made by one page move.
const DefaultPageSteps = 4

// SessionOptions contains session options.
type SessionOptions struct {
	// PageSteps is a number of single steps made by one page move.
	// Default is [DefaultPageSteps].
	PageSteps int
	// StrictLanes matches columns by address only, see [Columns].
	StrictLanes bool
	// CallIDColor colours messages by call instead of by request/response at start.
	CallIDColor bool
	// Log is a logger used to log session changes.
	// If nil, [log.Default] is used.
	Log *slog.Logger
}

func (o *SessionOptions) pageSteps() int {
	if o == nil || o.PageSteps <= 0 {
		return DefaultPageSteps
	}
	return o.PageSteps
}

func (o *SessionOptions) strictLanes() bool { return o != nil && o.StrictLanes }

func (o *SessionOptions) callIDColor() bool { return o != nil && o.CallIDColor }

func (o *SessionOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Session is the state of one extended call flow view.
//
// It owns the column table, the merged stream snapshot and the cursor of a correlated call pair.
// A session is owned by the rendering loop and is not safe for concurrent use;
// the registry it reads from is.
type Session struct {
	reg    *calls.Registry
	steps  int
	strict bool
	log    *slog.Logger

	a, b   *calls.Call
	trav   *Traversal
	cols   *Columns
	cur    Cursor
	top    Cursor
	height int
	labels map[string]string

	callIDColor bool
	help        bool
}

// NewSession creates an inactive session reading calls from reg.
func NewSession(reg *calls.Registry, opts *SessionOptions) (*Session, error) {
	if reg == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("nil registry"))
	}
	return &Session{
		reg:         reg,
		steps:       opts.pageSteps(),
		strict:      opts.strictLanes(),
		log:         opts.log(),
		callIDColor: opts.callIDColor(),
	}, nil
}

// SetSession starts a session for c and its correlated call.
// The columns are built over the merged stream and the cursor is placed on the first message.
//
// If c has no resolvable partner, [ErrNoCorrelation] is returned and the session is left untouched.
func (s *Session) SetSession(c *calls.Call) error {
	if c == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil call"))
	}
	x, ok := s.reg.ResolveCorrelation(c)
	if !ok {
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "call has no correlated call", slog.String("call_id", c.ID()))
		return errtrace.Wrap(ErrNoCorrelation)
	}
	trav, err := Traverse(s.reg, c)
	if err != nil {
		return errtrace.Wrap(err)
	}

	s.a, s.b = c, x
	s.trav = trav
	s.cols = AssignColumns(trav.Records(), s.strict)
	s.cur, s.top = 0, 0
	s.labels = nil
	s.help = false

	s.log.LogAttrs(context.Background(), slog.LevelDebug, "flow session started",
		slog.String("call_id", c.ID()),
		slog.String("partner_call_id", x.ID()),
		slog.Int("messages", trav.Len()),
		slog.Int("columns", s.cols.Len()),
	)
	return nil
}

// Active reports whether the session has a call pair.
func (s *Session) Active() bool { return s.trav != nil }

// Close ends the session and releases its state.
func (s *Session) Close() {
	s.a, s.b = nil, nil
	s.trav, s.cols = nil, nil
	s.cur, s.top = 0, 0
	s.labels = nil
	s.help = false
}

// Calls returns the session call pair.
func (s *Session) Calls() (a, b *calls.Call) { return s.a, s.b }

// Columns returns the session column table or nil if the session is inactive.
func (s *Session) Columns() *Columns { return s.cols }

// Traversal returns the session stream snapshot or nil if the session is inactive.
func (s *Session) Traversal() *Traversal { return s.trav }

// Cursor returns the current message cursor.
func (s *Session) Cursor() (Cursor, error) {
	if !s.Active() {
		return 0, errtrace.Wrap(ErrNoSession)
	}
	return s.cur, nil
}

// Current returns the current message.
func (s *Session) Current() (Step, bool) {
	if !s.Active() {
		return Step{}, false
	}
	return s.trav.At(s.cur)
}

// HelpVisible reports whether the help screen is toggled on.
func (s *Session) HelpVisible() bool { return s.help }

// CallIDColor reports whether messages are coloured by call.
func (s *Session) CallIDColor() bool { return s.callIDColor }

// SetHeight sets the number of diagram rows, every message takes two rows.
// Zero or less disables scrolling.
func (s *Session) SetHeight(rows int) {
	s.height = rows
	s.scroll()
}

func (s *Session) visible() int {
	if s.height <= 0 {
		return -1
	}
	return max(s.height/2, 1)
}

func (s *Session) scroll() {
	if !s.Active() {
		return
	}
	n := s.visible()
	switch {
	case s.cur < s.top:
		s.top = s.cur
	case n > 0 && int(s.cur-s.top) >= n:
		s.top = s.cur - Cursor(n) + 1
	}
}

// Next moves the cursor to the next message.
// It reports false on the last message.
func (s *Session) Next() bool {
	if !s.Active() {
		return false
	}
	c, ok := s.trav.Next(s.cur)
	if !ok {
		return false
	}
	s.cur = c
	s.scroll()
	return true
}

// Previous moves the cursor to the previous message.
// It reports false on the first message.
func (s *Session) Previous() bool {
	if !s.Active() {
		return false
	}
	c, ok := s.trav.Previous(s.cur)
	if !ok {
		return false
	}
	s.cur = c
	s.scroll()
	return true
}

// PageDown makes the page steps of [Session.Next], stopping at the last message.
func (s *Session) PageDown() {
	for range s.steps {
		if !s.Next() {
			return
		}
	}
}

// PageUp makes the page steps of [Session.Previous], stopping at the first message.
func (s *Session) PageUp() {
	for range s.steps {
		if !s.Previous() {
			return
		}
	}
}

// HandleKey applies key to the session.
//
// Cursor keys move in place and return [ActionNone].
// View keys return the requested view switch to the caller.
// Keys the session does not know return [ErrUnhandledKey].
func (s *Session) HandleKey(key Key) (Action, error) {
	if !s.Active() {
		return Action{}, errtrace.Wrap(ErrNoSession)
	}

	switch key {
	case KeyDown:
		s.Next()
	case KeyUp:
		s.Previous()
	case KeyPageDown:
		s.PageDown()
	case KeyPageUp:
		s.PageUp()
	case KeyColors:
		s.callIDColor = !s.callIDColor
	case KeyHelp:
		s.help = !s.help
		return Action{Kind: ActionToggleHelp}, nil
	case KeyCallFlow:
		return Action{Kind: ActionShowCallFlow, Call: s.a}, nil
	case KeyCallRaw:
		return Action{Kind: ActionShowCallRaw, Call: s.leg()}, nil
	case KeyMsgRaw:
		st, _ := s.Current()
		return Action{Kind: ActionShowMessageRaw, Call: s.leg(), Message: st.Rec}, nil
	default:
		return Action{}, errtrace.Wrap(ErrUnhandledKey)
	}
	return Action{Kind: ActionNone}, nil
}

func (s *Session) leg() *calls.Call {
	if st, ok := s.Current(); ok && st.Leg == LegB {
		return s.b
	}
	return s.a
}

// Concerns reports whether rec belongs to the session call pair, so the view must be redrawn.
func (s *Session) Concerns(rec *capture.Record) bool {
	if !s.Active() || rec == nil {
		return false
	}
	return rec.CallID == s.a.ID() || rec.CallID == s.b.ID()
}

// Refresh takes a new snapshot of the call pair.
// New addresses get new lanes after the existing ones, the cursor stays on the same message.
// It reports whether the stream changed.
func (s *Session) Refresh() (bool, error) {
	if !s.Active() {
		return false, errtrace.Wrap(ErrNoSession)
	}
	trav, err := Traverse(s.reg, s.a)
	if err != nil {
		return false, errtrace.Wrap(err)
	}
	if trav.Len() == s.trav.Len() {
		return false, nil
	}

	cur, _ := s.trav.At(s.cur)
	top, _ := s.trav.At(s.top)
	s.trav = trav
	for _, rec := range trav.Records() {
		s.cols.Add(rec)
	}
	if c, ok := trav.Find(cur.Rec); ok {
		s.cur = c
	}
	if c, ok := trav.Find(top.Rec); ok {
		s.top = c
	}
	s.scroll()
	return true, nil
}

// SetLabels sets column labels keyed by host, see [ResolveLabels].
func (s *Session) SetLabels(labels map[string]string) { s.labels = labels }

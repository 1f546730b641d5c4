// Package tui is the terminal front end: the call list and the extended call flow view.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"braces.dev/errtrace"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/flow"
	"github.com/ghettovoice/sipflow/internal/log"
	"github.com/ghettovoice/sipflow/internal/util"
)

type mode int

const (
	modeList mode = iota
	modeFlow
	modeCall
	modeRaw
)

// RecordMsg tells that records were stored to the registry.
type RecordMsg struct{ Recs []*capture.Record }

// CaptureEndedMsg tells that the capture ended.
type CaptureEndedMsg struct{ Err error }

type labelsMsg struct {
	callID string
	labels map[string]string
}

// Options contains model options.
type Options struct {
	Session *flow.SessionOptions
	// Resolver resolves column hosts to names.
	// If nil, columns show addresses only.
	Resolver flow.HostResolver
	// Title is shown in the top bar, e.g. the capture filter.
	Title string
	Keys  *KeyMap
	// Log is a logger used to log view changes.
	// If nil, [log.Default] is used.
	Log *slog.Logger
}

func (o *Options) keys() KeyMap {
	if o == nil || o.Keys == nil {
		return DefaultKeyMap
	}
	return *o.Keys
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Model is the bubbletea model of the application.
type Model struct {
	reg      *calls.Registry
	sess     *flow.Session
	resolver flow.HostResolver
	keys     KeyMap
	log      *slog.Logger
	title    string

	mode   mode
	back   mode
	cursor int
	offset int
	width  int
	height int

	// raw and single call views
	rawTitle string
	rawLines []string
	rawTop   int

	status string
	ended  bool
}

// New creates the model over reg.
func New(reg *calls.Registry, opts *Options) (Model, error) {
	var sopts *flow.SessionOptions
	if opts != nil {
		sopts = opts.Session
	}
	sess, err := flow.NewSession(reg, sopts)
	if err != nil {
		return Model{}, errtrace.Wrap(err)
	}

	m := Model{
		reg:    reg,
		sess:   sess,
		keys:   opts.keys(),
		log:    opts.log(),
		width:  120,
		height: 30,
	}
	if opts != nil {
		m.resolver = opts.Resolver
		m.title = opts.Title
	}
	m.sess.SetHeight(m.flowRows())
	return m, nil
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.sess.SetHeight(m.flowRows())
		m.clampOffset()
		return m, nil

	case RecordMsg:
		if m.mode == modeFlow && slices.ContainsFunc(msg.Recs, m.sess.Concerns) {
			m.refresh()
		}
		return m, nil

	case CaptureEndedMsg:
		m.ended = true
		m.status = "capture ended"
		if msg.Err != nil && !errors.Is(msg.Err, capture.ErrCaptureStopped) {
			m.status = fmt.Sprintf("capture ended: %v", msg.Err)
		}
		return m, nil

	case labelsMsg:
		if a, _ := m.sess.Calls(); a != nil && a.ID() == msg.callID {
			m.sess.SetLabels(msg.labels)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.mode {
		case modeList:
			return m.updateList(msg)
		case modeFlow:
			return m.updateFlow(msg)
		default:
			return m.updateRaw(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := m.reg.Len()
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.cursor--
	case key.Matches(msg, m.keys.Down):
		m.cursor++
	case key.Matches(msg, m.keys.PageUp):
		m.cursor -= m.listRows()
	case key.Matches(msg, m.keys.PageDown):
		m.cursor += m.listRows()
	case key.Matches(msg, m.keys.Open):
		return m.openFlow()
	}
	m.cursor = util.Clamp(m.cursor, 0, n-1)
	m.clampOffset()
	return m, nil
}

func (m Model) openFlow() (tea.Model, tea.Cmd) {
	cs := m.reg.Calls()
	if m.cursor >= len(cs) {
		return m, nil
	}
	c := cs[m.cursor]
	if err := m.sess.SetSession(c); err != nil {
		m.status = fmt.Sprintf("%s: %v", c.ID(), err)
		return m, nil
	}
	m.status = ""
	m.mode = modeFlow
	m.sess.SetHeight(m.flowRows())

	if m.resolver == nil {
		return m, nil
	}
	r, cols, logger, id := m.resolver, m.sess.Columns().All(), m.log, c.ID()
	return m, func() tea.Msg {
		return labelsMsg{callID: id, labels: flow.ResolveLabels(context.Background(), r, cols, logger)}
	}
}

func (m Model) updateFlow(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.sess.HelpVisible() && msg.String() != string(flow.KeyHelp) {
		// any key closes the help
		m.sess.HandleKey(flow.KeyHelp)
		return m, nil
	}

	act, err := m.sess.HandleKey(flow.Key(msg.String()))
	if errors.Is(err, flow.ErrUnhandledKey) {
		if key.Matches(msg, m.keys.Back) {
			m.sess.Close()
			m.mode = modeList
		}
		return m, nil
	}
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	m.log.LogAttrs(context.Background(), slog.LevelDebug, "flow key handled",
		slog.String("key", msg.String()),
		slog.Any("action", log.FmtValue(act.Kind, false)),
	)
	switch act.Kind {
	case flow.ActionShowCallFlow:
		m.showCall(act.Call)
	case flow.ActionShowCallRaw:
		m.showRaw(act.Call.ID(), callPayload(act.Call))
	case flow.ActionShowMessageRaw:
		m.showRaw(act.Message.String(), act.Message.Payload)
	}
	return m, nil
}

func (m Model) updateRaw(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = m.back
		if m.mode == modeFlow {
			// records stored while the raw view was open
			m.refresh()
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.rawTop--
	case key.Matches(msg, m.keys.Down):
		m.rawTop++
	case key.Matches(msg, m.keys.PageUp):
		m.rawTop -= m.listRows()
	case key.Matches(msg, m.keys.PageDown):
		m.rawTop += m.listRows()
	}
	m.rawTop = util.Clamp(m.rawTop, 0, len(m.rawLines)-m.listRows())
	return m, nil
}

func (m *Model) refresh() {
	if _, err := m.sess.Refresh(); err != nil {
		m.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to refresh the flow", slog.Any("error", err))
	}
}

func (m *Model) showRaw(title string, lines []string) {
	m.back, m.mode = m.mode, modeRaw
	m.rawTitle, m.rawLines, m.rawTop = title, lines, 0
}

func (m *Model) showCall(c *calls.Call) {
	var lines []string
	for _, rec := range c.Messages() {
		lines = append(lines, fmt.Sprintf("%s  %-22s -> %-22s  %s",
			rec.TimeString(), rec.Src, rec.Dst, rec.Method))
	}
	m.back, m.mode = m.mode, modeCall
	m.rawTitle, m.rawLines, m.rawTop = "Call flow for "+c.ID(), lines, 0
}

func callPayload(c *calls.Call) []string {
	var lines []string
	for _, rec := range c.Messages() {
		lines = append(lines, rec.String())
		lines = append(lines, rec.Payload...)
		lines = append(lines, "")
	}
	return lines
}

// listRows is the number of rows below the title and the header, above the status bar.
func (m Model) listRows() int { return max(m.height-4, 1) }

// flowRows is the number of diagram rows below the column headers.
func (m Model) flowRows() int { return max(m.height-8, 2) }

func (m *Model) clampOffset() {
	visible := m.listRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	m.offset = max(m.offset, 0)
}

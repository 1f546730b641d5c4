package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ghettovoice/sipflow/flow"
	"github.com/ghettovoice/sipflow/internal/util"
)

const (
	laneWidth  = 30
	laneOffset = 20
	timeWidth  = 17
	rawWidth   = 60
)

func (m Model) View() string {
	var body string
	switch m.mode {
	case modeFlow:
		body = m.renderFlow()
	case modeCall, modeRaw:
		body = m.renderRaw()
	default:
		body = m.renderList()
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderStatus() string {
	var help string
	switch m.mode {
	case modeFlow:
		help = "q/Esc: back  F1: help  x: call flow  r: call raw  Enter: message raw  c: colours"
	case modeCall, modeRaw:
		help = "q/Esc: back  ↑/↓: scroll"
	default:
		help = "Enter: extended flow  ↑/↓: move  ctrl+c: quit"
	}
	line := dimStyle.Render("  " + help)
	if m.status != "" {
		line = statusStyle.Render("  "+m.status) + line
	}
	return line
}

func (m Model) renderList() string {
	var b strings.Builder

	title := titleStyle.Render("sipflow")
	info := dimStyle.Render(fmt.Sprintf("  %s  %d calls", m.title, m.reg.Len()))
	if m.ended {
		info += statusStyle.Render("  [ended]")
	}
	b.WriteString(title + info + "\n")
	b.WriteString(headerStyle.Render(pad(fmt.Sprintf(" %-4s %-40s %-40s %5s  %-16s %s",
		"#", "Call-ID", "X-Call-ID", "Msgs", "Method", "Source -> Destination"), m.width)) + "\n")

	cs := m.reg.Calls()
	end := min(m.offset+m.listRows(), len(cs))
	for i := m.offset; i < end; i++ {
		c := cs[i]
		var method, path string
		if first, ok := c.First(); ok {
			method = first.Method
			path = first.Src.String() + " -> " + first.Dst.String()
		}
		row := fmt.Sprintf(" %-4d %-40s %-40s %5d  %-16s %s",
			i+1,
			util.Ellipsis(c.ID(), 40),
			util.Ellipsis(c.XCallID(), 40),
			c.Len(),
			util.Ellipsis(method, 16),
			path,
		)
		if i == m.cursor {
			row = selectedStyle.Render(pad(row, m.width))
		}
		b.WriteString(row + "\n")
	}
	for i := end - m.offset; i < m.listRows(); i++ {
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderRaw() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.rawTitle) + "\n")
	end := min(m.rawTop+m.listRows(), len(m.rawLines))
	for i := m.rawTop; i < end; i++ {
		b.WriteString(util.Ellipsis(m.rawLines[i], max(m.width, 4)) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderFlow() string {
	v, err := m.sess.View()
	if err != nil {
		return statusStyle.Render(err.Error())
	}
	if v.Help {
		return lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center,
			helpBoxStyle.Render("Call Flow Extended Help\n\n"+flow.HelpText))
	}

	diagram := renderDiagram(v, m.flowRows())
	if v.Raw != nil {
		var raw strings.Builder
		for i, l := range v.Raw {
			if i >= m.flowRows()+4 {
				break
			}
			raw.WriteString(util.Ellipsis(l, rawWidth) + "\n")
		}
		diagram = lipgloss.JoinHorizontal(lipgloss.Top, diagram, "  ", dimStyle.Render(raw.String()))
	}

	title := titleStyle.Render(fmt.Sprintf("Call Details for %s -> %s", v.CallIDs[0], v.CallIDs[1]))
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, title) + "\n\n" + diagram
}

// renderDiagram draws column headers and two lines per message row.
func renderDiagram(v flow.View, rows int) string {
	width := laneOffset + laneWidth*max(len(v.Columns), 1)
	var b strings.Builder

	hdr := []rune(strings.Repeat(" ", width))
	for _, c := range v.Columns {
		name := c.Addr
		if c.Label != "" {
			name = c.Label
		}
		put(hdr, laneOffset+laneWidth*c.Lane-13, fmt.Sprintf("%26s", util.Ellipsis(name, 26)))
	}
	b.WriteString(strings.TrimRight(string(hdr), " ") + "\n")

	sep := []rune(strings.Repeat(" ", width))
	for _, c := range v.Columns {
		x := laneOffset + laneWidth*c.Lane
		put(sep, x-10, strings.Repeat("─", 20))
		put(sep, x, "┬")
	}
	b.WriteString(strings.TrimRight(string(sep), " ") + "\n")

	for _, r := range v.Rows {
		top, bottom := flowRow(v, r, width)
		style := arrowStyle(v, r)
		if r.Selected {
			style = style.Bold(true)
		}
		b.WriteString(top[:timeWidth] + style.Render(top[timeWidth:]) + "\n")
		b.WriteString(bottom[:timeWidth] + style.Render(bottom[timeWidth:]) + "\n")
	}
	for i := 2 * len(v.Rows); i < rows; i++ {
		line := []rune(strings.Repeat(" ", width))
		if v.More && i == rows-1 {
			put(line, laneOffset, "↓")
		} else {
			for _, c := range v.Columns {
				put(line, laneOffset+laneWidth*c.Lane, "│")
			}
		}
		b.WriteString(strings.TrimRight(string(line), " ") + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func flowRow(v flow.View, r flow.Row, width int) (string, string) {
	top := []rune(strings.Repeat(" ", width))
	bottom := []rune(strings.Repeat(" ", width))
	for _, c := range v.Columns {
		x := laneOffset + laneWidth*c.Lane
		put(top, x, "│")
		put(bottom, x, "│")
	}
	put(top, 1, r.Time)

	start := laneOffset + laneWidth*r.Left()
	end := laneOffset + laneWidth*r.Right()
	dist := max(end-start-3, 1)
	put(top, start+2, util.Center(r.Method, dist))
	put(bottom, start+2, strings.Repeat("─", dist))
	if r.Rightward() {
		put(bottom, start+1+dist, "►")
	} else {
		put(bottom, start+2, "◄")
	}
	return strings.TrimRight(string(top), " "), strings.TrimRight(string(bottom), " ")
}

func arrowStyle(v flow.View, r flow.Row) lipgloss.Style {
	if v.CallIDColor {
		if r.Leg == flow.LegA {
			return legAStyle
		}
		return legBStyle
	}
	if r.Request {
		return requestStyle
	}
	return responseStyle
}

// put writes s into line at x, clipping at both ends.
func put(line []rune, x int, s string) {
	for _, c := range s {
		if x >= 0 && x < len(line) {
			line[x] = c
		}
		x++
	}
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

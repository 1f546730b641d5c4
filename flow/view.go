package flow

import (
	"context"
	"log/slog"
	"slices"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/internal/log"
	"github.com/ghettovoice/sipflow/internal/util"
)

// MaxMethodLen limits the method or status text of a row.
const MaxMethodLen = 24

// View is a render snapshot of a session.
type View struct {
	// CallIDs are the Call-IDs of the first and the correlated call.
	CallIDs [2]string
	Columns []ColumnView
	Rows    []Row
	// More reports that messages follow the last visible row.
	More bool
	// Raw is the payload of the current message.
	// It is set only with exactly three columns, when it fits beside the diagram.
	Raw         []string
	CallIDColor bool
	Help        bool
}

// ColumnView is a column header.
type ColumnView struct {
	Lane int
	Addr string
	// Label is a resolved host name of the address, if any.
	Label string
}

// Row is a visible message.
type Row struct {
	Time   string
	Method string
	CallID string
	Leg    Leg
	// From and To are lanes of the source and the destination.
	From, To int
	Request  bool
	Selected bool
}

// Left returns the lower lane of the row.
func (r Row) Left() int { return min(r.From, r.To) }

// Right returns the upper lane of the row.
func (r Row) Right() int { return max(r.From, r.To) }

// Rightward reports whether the arrow points to the upper lane.
func (r Row) Rightward() bool { return r.From <= r.To }

// View returns the render snapshot of the visible window.
func (s *Session) View() (View, error) {
	if !s.Active() {
		return View{}, errtrace.Wrap(ErrNoSession)
	}

	v := View{
		CallIDs:     [2]string{s.a.ID(), s.b.ID()},
		CallIDColor: s.callIDColor,
		Help:        s.help,
	}
	for _, col := range s.cols.All() {
		v.Columns = append(v.Columns, ColumnView{
			Lane:  col.Lane,
			Addr:  col.Addr.String(),
			Label: s.labels[col.Addr.Host],
		})
	}

	n := s.visible()
	for c := s.top; ; c++ {
		st, ok := s.trav.At(c)
		if !ok {
			break
		}
		if n > 0 && len(v.Rows) == n {
			v.More = true
			break
		}
		src, dst, _ := s.cols.Lanes(st.Rec)
		v.Rows = append(v.Rows, Row{
			Time:     st.Rec.TimeString(),
			Method:   util.Ellipsis(st.Rec.Method, MaxMethodLen),
			CallID:   st.Rec.CallID,
			Leg:      st.Leg,
			From:     src,
			To:       dst,
			Request:  st.Rec.Request,
			Selected: c == s.cur,
		})
	}

	if s.cols.Len() == 3 {
		if st, ok := s.Current(); ok {
			v.Raw = slices.Clone(st.Rec.Payload)
		}
	}
	return v, nil
}

// HostResolver resolves an address to host names.
// [github.com/ghettovoice/sipflow/dns.Resolver] implements it.
type HostResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// ResolveLabels resolves the hosts of cols to names.
// Failed lookups are logged and skipped.
// It does not touch the session, so it can run outside the rendering loop.
func ResolveLabels(ctx context.Context, r HostResolver, cols []Column, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = log.Default()
	}
	labels := make(map[string]string, len(cols))
	for _, col := range cols {
		host := col.Addr.Host
		if _, ok := labels[host]; ok || host == "" {
			continue
		}
		names, err := r.LookupAddr(ctx, host)
		if err != nil || len(names) == 0 {
			logger.LogAttrs(ctx, slog.LevelDebug, "failed to resolve column host",
				slog.String("host", host),
				slog.Any("error", err),
			)
			continue
		}
		labels[host] = names[0]
	}
	return labels
}

package flow

import (
	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/internal/util"
)

// Column is a lane of the flow diagram.
type Column struct {
	Lane int
	// Addr is the endpoint as it was first seen.
	Addr capture.Endpoint
	// CallID is the Call-ID of the message that opened the column.
	CallID string
}

// Columns maps endpoint addresses to lanes.
//
// By default columns behave like the classic extended flow view:
// a column is matched by address and by Call-ID, except lane 1 that is matched by address
// for messages of any call. With two legs through a proxy the proxy address opens lane 1
// and both legs share it, while other addresses seen by both legs get a column per leg.
//
// In strict mode a column is matched by address only, so every address gets exactly one lane.
//
// Addresses are compared case-insensitively.
type Columns struct {
	strict bool
	cols   []Column
	byAddr map[string][]int
}

// NewColumns creates an empty column table.
func NewColumns(strict bool) *Columns {
	return &Columns{
		strict: strict,
		byAddr: make(map[string][]int),
	}
}

// AssignColumns builds a column table over msgs.
// Messages are scanned in order, the source and then the destination address of each message
// open a new lane if no column matches them.
// The result depends only on msgs order and the mode.
func AssignColumns(msgs []*capture.Record, strict bool) *Columns {
	cols := NewColumns(strict)
	for _, m := range msgs {
		cols.Add(m)
	}
	return cols
}

// Add opens lanes for the source and destination addresses of rec, if needed.
func (cs *Columns) Add(rec *capture.Record) {
	if rec == nil {
		return
	}
	cs.open(rec.CallID, rec.Src)
	cs.open(rec.CallID, rec.Dst)
}

func (cs *Columns) open(callID string, ep capture.Endpoint) {
	if _, ok := cs.Lookup(callID, ep); ok {
		return
	}
	col := Column{Lane: len(cs.cols), Addr: ep, CallID: callID}
	cs.cols = append(cs.cols, col)
	k := ep.Key()
	cs.byAddr[k] = append(cs.byAddr[k], col.Lane)
}

// Lookup returns the column of ep for a message of the call callID.
func (cs *Columns) Lookup(callID string, ep capture.Endpoint) (Column, bool) {
	for _, lane := range cs.byAddr[ep.Key()] {
		col := cs.cols[lane]
		if cs.strict || col.Lane == 1 || util.EqFold(col.CallID, callID) {
			return col, true
		}
	}
	return Column{}, false
}

// Lanes returns the source and destination lanes of rec.
// ok is false if rec was never added.
func (cs *Columns) Lanes(rec *capture.Record) (src, dst int, ok bool) {
	s, ok1 := cs.Lookup(rec.CallID, rec.Src)
	d, ok2 := cs.Lookup(rec.CallID, rec.Dst)
	return s.Lane, d.Lane, ok1 && ok2
}

// Len returns the number of lanes.
func (cs *Columns) Len() int { return len(cs.cols) }

// Strict reports whether columns are matched by address only.
func (cs *Columns) Strict() bool { return cs.strict }

// All returns columns ordered by lane.
func (cs *Columns) All() []Column { return append([]Column(nil), cs.cols...) }

// AddrLanes returns all lanes of ep in lane order.
// In strict mode there is at most one, by default an address seen by both legs
// off lane 1 has a lane per leg.
func (cs *Columns) AddrLanes(ep capture.Endpoint) []int {
	return append([]int(nil), cs.byAddr[ep.Key()]...)
}

// Map returns the lowest lane of every address keyed by [capture.Endpoint.Key].
// It is complete in strict mode only, otherwise extra lanes of an address are omitted;
// use [Columns.AddrLanes] or [Columns.All] to get them.
func (cs *Columns) Map() map[string]int {
	m := make(map[string]int, len(cs.byAddr))
	for k, lanes := range cs.byAddr {
		m[k] = lanes[0]
	}
	return m
}

package flow

import (
	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
)

// Leg tells which call of a pair a message belongs to.
type Leg int

const (
	LegA Leg = iota
	LegB
)

func (l Leg) String() string {
	if l == LegB {
		return "B"
	}
	return "A"
}

// Step is a message in the merged stream.
type Step struct {
	Rec *capture.Record
	Leg Leg
}

// Cursor is a position in the merged stream.
type Cursor int

// Merge merges messages of two calls ordered by timestamp.
// For equal timestamps messages of a go first. The order within each call is kept.
func Merge(a, b []*capture.Record) []Step {
	steps := make([]Step, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Time.Before(a[i].Time) {
			steps = append(steps, Step{b[j], LegB})
			j++
			continue
		}
		steps = append(steps, Step{a[i], LegA})
		i++
	}
	for ; i < len(a); i++ {
		steps = append(steps, Step{a[i], LegA})
	}
	for ; j < len(b); j++ {
		steps = append(steps, Step{b[j], LegB})
	}
	return steps
}

// Traversal is a cursor walk over the merged messages of a correlated call pair.
//
// The stream is merged once, so Previous is a constant time step back.
// A traversal is a snapshot: messages added to the calls later are not visible.
type Traversal struct {
	steps []Step
}

// NewTraversal creates a traversal over already merged steps.
func NewTraversal(steps []Step) *Traversal { return &Traversal{steps: steps} }

// Traverse snapshots the call c and its correlated call and merges their messages.
// The correlation must be already resolved with [calls.Registry.ResolveCorrelation],
// otherwise [ErrNoCorrelation] is returned.
func Traverse(reg *calls.Registry, c *calls.Call) (*Traversal, error) {
	if reg == nil || c == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("nil registry or call"))
	}
	x, ok := c.Partner()
	if !ok {
		return nil, errtrace.Wrap(ErrNoCorrelation)
	}
	snap := reg.Snapshot(c, x)
	return NewTraversal(Merge(snap[0], snap[1])), nil
}

// Len returns the number of messages.
func (t *Traversal) Len() int { return len(t.steps) }

// First returns the cursor of the first message.
func (t *Traversal) First() (Cursor, bool) {
	if len(t.steps) == 0 {
		return 0, false
	}
	return 0, true
}

// Last returns the cursor of the last message.
func (t *Traversal) Last() (Cursor, bool) {
	if len(t.steps) == 0 {
		return 0, false
	}
	return Cursor(len(t.steps) - 1), true
}

// Next returns the cursor following c.
func (t *Traversal) Next(c Cursor) (Cursor, bool) {
	if !t.valid(c) || int(c)+1 >= len(t.steps) {
		return c, false
	}
	return c + 1, true
}

// Previous returns the cursor preceding c.
func (t *Traversal) Previous(c Cursor) (Cursor, bool) {
	if !t.valid(c) || c == 0 {
		return c, false
	}
	return c - 1, true
}

// At returns the message at c.
func (t *Traversal) At(c Cursor) (Step, bool) {
	if !t.valid(c) {
		return Step{}, false
	}
	return t.steps[c], true
}

// Find returns the cursor of rec.
func (t *Traversal) Find(rec *capture.Record) (Cursor, bool) {
	for i, s := range t.steps {
		if s.Rec == rec {
			return Cursor(i), true
		}
	}
	return 0, false
}

// Records returns the merged messages.
func (t *Traversal) Records() []*capture.Record {
	out := make([]*capture.Record, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.Rec
	}
	return out
}

func (t *Traversal) valid(c Cursor) bool { return c >= 0 && int(c) < len(t.steps) }

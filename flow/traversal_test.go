package flow_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/flow"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	a1 := msg("a", "10.0.0.1:5060", "10.0.0.2:5060", 1)
	a2 := msg("a", "10.0.0.2:5060", "10.0.0.1:5060", 5)
	a3 := msg("a", "10.0.0.1:5060", "10.0.0.2:5060", 9)
	b1 := msg("b", "10.0.0.2:5060", "10.0.0.3:5060", 2)
	b2 := msg("b", "10.0.0.3:5060", "10.0.0.2:5060", 5)
	b3 := msg("b", "10.0.0.3:5060", "10.0.0.2:5060", 12)

	cases := []struct {
		name string
		a, b []*capture.Record
		want []flow.Step
	}{
		{"empty", nil, nil, []flow.Step{}},
		{"only a", []*capture.Record{a1, a2}, nil, []flow.Step{{Rec: a1, Leg: flow.LegA}, {Rec: a2, Leg: flow.LegA}}},
		{"only b", nil, []*capture.Record{b1}, []flow.Step{{Rec: b1, Leg: flow.LegB}}},
		{
			"interleaved with tie",
			[]*capture.Record{a1, a2, a3},
			[]*capture.Record{b1, b2, b3},
			[]flow.Step{{Rec: a1, Leg: flow.LegA}, {Rec: b1, Leg: flow.LegB}, {Rec: a2, Leg: flow.LegA}, {Rec: b2, Leg: flow.LegB}, {Rec: a3, Leg: flow.LegA}, {Rec: b3, Leg: flow.LegB}},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(flow.Merge(c.a, c.b), c.want); diff != "" {
				t.Errorf("flow.Merge() diff (-got +want):\n%v", diff)
			}
		})
	}
}

func TestTraversal(t *testing.T) {
	t.Parallel()

	var a, b []*capture.Record
	for i := range 7 {
		a = append(a, msg("a", "10.0.0.1:5060", "10.0.0.2:5060", i*3))
		b = append(b, msg("b", "10.0.0.2:5060", "10.0.0.3:5060", i*2))
	}
	tr := flow.NewTraversal(flow.Merge(a, b))

	// forward walk is a total order consistent with timestamps
	var walked []flow.Cursor
	c, ok := tr.First()
	for ok {
		walked = append(walked, c)
		c, ok = tr.Next(c)
	}
	if len(walked) != tr.Len() {
		t.Fatalf("forward walk visited %d messages, want %d", len(walked), tr.Len())
	}
	for i := 1; i < len(walked); i++ {
		prev, _ := tr.At(walked[i-1])
		cur, _ := tr.At(walked[i])
		if cur.Rec.Time.Before(prev.Rec.Time) {
			t.Errorf("message %d at %v goes before message %d at %v", i, cur.Rec.Time, i-1, prev.Rec.Time)
		}
	}

	for _, x := range walked {
		p, ok := tr.Previous(x)
		if !ok {
			if first, _ := tr.First(); x != first {
				t.Errorf("tr.Previous(%d) = _, false on a non-first cursor", x)
			}
			continue
		}
		if n, ok := tr.Next(p); !ok || n != x {
			t.Errorf("tr.Next(tr.Previous(%d)) = %d, %v, want %d", x, n, ok, x)
		}
	}

	last, _ := tr.Last()
	if _, ok := tr.Next(last); ok {
		t.Error("tr.Next(last) = _, true, want false")
	}
	if _, ok := tr.At(flow.Cursor(tr.Len())); ok {
		t.Error("tr.At(out of range) = _, true, want false")
	}

	empty := flow.NewTraversal(nil)
	if _, ok := empty.First(); ok {
		t.Error("empty.First() = _, true, want false")
	}
}

func TestTraverse(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t,
		withXCallID(msg("a", "10.0.0.1:5060", "10.0.0.2:5060", 1), "b"),
		msg("b", "10.0.0.2:5060", "10.0.0.3:5060", 2),
		msg("c", "10.0.0.2:5060", "10.0.0.3:5060", 3),
	)

	a := getCall(t, reg, "a")
	if _, err := flow.Traverse(reg, a); !errors.Is(err, flow.ErrNoCorrelation) {
		t.Fatalf("flow.Traverse() before correlation error = %v, want %v", err, flow.ErrNoCorrelation)
	}
	if _, err := flow.Traverse(reg, nil); !errors.Is(err, flow.ErrInvalidArgument) {
		t.Fatalf("flow.Traverse(nil) error = %v, want %v", err, flow.ErrInvalidArgument)
	}

	if _, ok := reg.ResolveCorrelation(a); !ok {
		t.Fatal("reg.ResolveCorrelation() = _, false, want true")
	}
	tr, err := flow.Traverse(reg, a)
	if err != nil {
		t.Fatalf("flow.Traverse() error = %v, want nil", err)
	}
	if got := tr.Len(); got != 2 {
		t.Errorf("tr.Len() = %d, want 2", got)
	}
}

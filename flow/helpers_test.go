package flow_test

import (
	"testing"
	"time"

	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
)

var t0 = time.Date(2014, time.March, 7, 12, 1, 2, 0, time.Local)

func ep(s string) capture.Endpoint {
	e, err := capture.ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return e
}

// msg builds a record of callID sent from src to dst at t0 + ms milliseconds.
func msg(callID, src, dst string, ms int) *capture.Record {
	return &capture.Record{
		Dir:     "U",
		Time:    t0.Add(time.Duration(ms) * time.Millisecond),
		Src:     ep(src),
		Dst:     ep(dst),
		CallID:  callID,
		Method:  "INVITE",
		Request: true,
		Payload: []string{"INVITE sip:bob@example.com SIP/2.0", "Call-ID: " + callID},
	}
}

func withXCallID(rec *capture.Record, xid string) *capture.Record {
	rec.XCallID = xid
	return rec
}

func newRegistry(t *testing.T, recs ...*capture.Record) *calls.Registry {
	t.Helper()
	reg := calls.NewRegistry(nil)
	for _, r := range recs {
		if err := reg.AddMessage(r); err != nil {
			t.Fatalf("reg.AddMessage() error = %v, want nil", err)
		}
	}
	return reg
}

func getCall(t *testing.T, reg *calls.Registry, id string) *calls.Call {
	t.Helper()
	c, ok := reg.GetCall(id)
	if !ok {
		t.Fatalf("reg.GetCall(%q) = _, false, want true", id)
	}
	return c
}

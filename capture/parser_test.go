package capture_test

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/sipflow/capture"
)

const (
	hdrInvite  = "U 07/03/14 12:01:02.123456 10.0.0.1:5060 -> 10.0.0.2:5060"
	hdrTrying  = "U 07/03/14 12:01:02.223456 10.0.0.2:5060 -> 10.0.0.1:5060"
	hdrInvite2 = "U 07/03/14 12:01:02.323456 10.0.0.2:5060 -> 10.0.0.3:5060"
)

func inviteBlock(hdr, callID, xcallID string) string {
	lines := []string{
		hdr,
		"INVITE sip:bob@example.com SIP/2.0.",
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK776asdhds.",
		"From: <sip:alice@example.com>;tag=1928301774.",
		"To: <sip:bob@example.com>.",
		"Call-ID: " + callID + ".",
	}
	if xcallID != "" {
		lines = append(lines, "X-Call-ID: "+xcallID+".")
	}
	lines = append(lines,
		"CSeq: 1 INVITE.",
		"Content-Length: 0.",
		".",
		"",
	)
	return strings.Join(lines, "\n") + "\n"
}

func responseBlock(hdr, callID, status string) string {
	return strings.Join([]string{
		hdr,
		"SIP/2.0 " + status + ".",
		"From: <sip:alice@example.com>;tag=1928301774.",
		"To: <sip:bob@example.com>.",
		"i: " + callID + ".",
		"CSeq: 1 INVITE.",
		".",
		"",
	}, "\n") + "\n"
}

func capTime(s string) time.Time {
	t, err := time.ParseInLocation(capture.TimeLayout, s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		line    string
		want    capture.Header
		wantErr error
	}{
		{
			"valid",
			hdrInvite,
			capture.Header{
				Dir:  "U",
				Time: capTime("07/03/14 12:01:02.123456"),
				Src:  capture.Endpoint{Host: "10.0.0.1", Port: 5060},
				Dst:  capture.Endpoint{Host: "10.0.0.2", Port: 5060},
			},
			nil,
		},
		{
			"other direction letter",
			"T 07/03/14 12:01:02.123456 10.0.0.1:5061 -> 10.0.0.2:5062",
			capture.Header{
				Dir:  "T",
				Time: capTime("07/03/14 12:01:02.123456"),
				Src:  capture.Endpoint{Host: "10.0.0.1", Port: 5061},
				Dst:  capture.Endpoint{Host: "10.0.0.2", Port: 5062},
			},
			nil,
		},
		{"missing arrow", "U 07/03/14 12:01:02.123456 10.0.0.1:5060 10.0.0.2:5060", capture.Header{}, capture.ErrMalformedHeader},
		{"missing port", "U 07/03/14 12:01:02.123456 10.0.0.1 -> 10.0.0.2:5060", capture.Header{}, capture.ErrMalformedHeader},
		{"bad date", "U 32/13/14 12:01:02.123456 10.0.0.1:5060 -> 10.0.0.2:5060", capture.Header{}, capture.ErrMalformedHeader},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := capture.ParseHeader(c.line)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("capture.ParseHeader(%q) error = %v, want %v", c.line, err, c.wantErr)
				}
				var perr *capture.ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("capture.ParseHeader(%q) error = %T, want *capture.ParseError", c.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("capture.ParseHeader(%q) error = %v, want nil", c.line, err)
			}
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("capture.ParseHeader(%q) = %+v, want %+v\ndiff (-got +want):\n%v", c.line, got, c.want, diff)
			}
		})
	}
}

func TestParseBlock(t *testing.T) {
	t.Parallel()

	hdr := capture.Header{
		Dir:  "U",
		Time: capTime("07/03/14 12:01:02.123456"),
		Src:  capture.Endpoint{Host: "10.0.0.1", Port: 5060},
		Dst:  capture.Endpoint{Host: "10.0.0.2", Port: 5060},
	}

	cases := []struct {
		name    string
		lines   []string
		want    *capture.Record
		wantErr error
	}{
		{"empty", nil, nil, capture.ErrNotSIP},
		{"not sip", []string{"GET / HTTP/1.1", "Host: example.com"}, nil, capture.ErrNotSIP},
		{"bad status", []string{"SIP/2.0 2000 OK", "Call-ID: abc"}, nil, capture.ErrNotSIP},
		{"no call-id", []string{"OPTIONS sip:example.com SIP/2.0", "CSeq: 1 OPTIONS"}, nil, capture.ErrNoCallID},
		{
			"request with byline markers",
			[]string{
				"INVITE sip:bob@example.com SIP/2.0.",
				"from: <sip:alice@example.com>.",
				"t: <sip:bob@example.com>.",
				"Call-ID: abc@host.",
				"X-CID: def@host.",
				"CSeq: 1 INVITE.",
				".",
				"v=0.",
			},
			&capture.Record{
				Dir:     "U",
				Time:    hdr.Time,
				Src:     hdr.Src,
				Dst:     hdr.Dst,
				CallID:  "abc@host",
				XCallID: "def@host",
				Method:  "INVITE",
				Request: true,
				From:    "<sip:alice@example.com>",
				To:      "<sip:bob@example.com>",
				CSeq:    "1 INVITE",
				Payload: []string{
					"INVITE sip:bob@example.com SIP/2.0",
					"from: <sip:alice@example.com>",
					"t: <sip:bob@example.com>",
					"Call-ID: abc@host",
					"X-CID: def@host",
					"CSeq: 1 INVITE",
					"",
					"v=0",
				},
			},
			nil,
		},
		{
			"response",
			[]string{
				"SIP/2.0 180 Ringing",
				"i: abc",
				"",
				"Call-ID: ignored",
			},
			&capture.Record{
				Dir:     "U",
				Time:    hdr.Time,
				Src:     hdr.Src,
				Dst:     hdr.Dst,
				CallID:  "abc",
				Method:  "180 Ringing",
				Status:  180,
				Payload: []string{"SIP/2.0 180 Ringing", "i: abc", "", "Call-ID: ignored"},
			},
			nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := capture.ParseBlock(hdr, c.lines)
			if diff := cmp.Diff(err, c.wantErr, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("capture.ParseBlock(hdr, lines) error = %v, want %v\ndiff (-got +want):\n%v", err, c.wantErr, diff)
			}
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("capture.ParseBlock(hdr, lines) = %+v, want %+v\ndiff (-got +want):\n%v", got, c.want, diff)
			}
		})
	}
}

func collect(t *testing.T, p *capture.StreamParser) (recs []*capture.Record, perrs []error, err error) {
	t.Helper()

	for rec, e := range p.Records() {
		if e != nil {
			var perr *capture.ParseError
			if errors.As(e, &perr) {
				perrs = append(perrs, e)
				continue
			}
			return recs, perrs, e
		}
		recs = append(recs, rec)
	}
	return recs, perrs, nil
}

func TestStreamParser_Records(t *testing.T) {
	t.Parallel()

	t.Run("banner and blocks", func(t *testing.T) {
		t.Parallel()

		in := "interface: any\nfilter: ( port 5060 )\n\n" +
			inviteBlock(hdrInvite, "CID1", "CID2") +
			responseBlock(hdrTrying, "CID1", "100 Trying")

		recs, perrs, err := collect(t, capture.ParseStream(strings.NewReader(in)))
		if err != nil {
			t.Fatalf("p.Records() error = %v, want nil", err)
		}
		if len(perrs) != 0 {
			t.Errorf("p.Records() parse errors = %v, want none", perrs)
		}
		got := make([]string, 0, len(recs))
		for _, rec := range recs {
			got = append(got, rec.CallID+" "+rec.Method)
		}
		want := []string{"CID1 INVITE", "CID1 100 Trying"}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("records = %v, want %v\ndiff (-got +want):\n%v", got, want, diff)
		}
		if got, want := recs[0].XCallID, "CID2"; got != want {
			t.Errorf("recs[0].XCallID = %q, want %q", got, want)
		}
	})

	t.Run("malformed header skipped", func(t *testing.T) {
		t.Parallel()

		broken := strings.Replace(inviteBlock(hdrInvite, "BROKEN", ""), " -> ", " ", 1)
		in := broken + inviteBlock(hdrInvite2, "CID2", "")

		recs, perrs, err := collect(t, capture.ParseStream(strings.NewReader(in)))
		if err != nil {
			t.Fatalf("p.Records() error = %v, want nil", err)
		}
		if len(perrs) != 1 || !errors.Is(perrs[0], capture.ErrMalformedHeader) {
			t.Errorf("p.Records() parse errors = %v, want one %v", perrs, capture.ErrMalformedHeader)
		}
		if len(recs) != 1 || recs[0].CallID != "CID2" {
			t.Fatalf("p.Records() = %v, want one record of CID2", recs)
		}
	})

	t.Run("header without blank separator", func(t *testing.T) {
		t.Parallel()

		in := strings.TrimSuffix(inviteBlock(hdrInvite, "CID1", ""), "\n\n") + "\n" +
			inviteBlock(hdrInvite2, "CID2", "")

		recs, _, err := collect(t, capture.ParseStream(strings.NewReader(in)))
		if err != nil {
			t.Fatalf("p.Records() error = %v, want nil", err)
		}
		if len(recs) != 2 {
			t.Fatalf("len(records) = %d, want 2", len(recs))
		}
	})

	t.Run("block terminated by eof", func(t *testing.T) {
		t.Parallel()

		in := strings.TrimSuffix(inviteBlock(hdrInvite, "CID1", ""), "\n\n")

		recs, _, err := collect(t, capture.ParseStream(strings.NewReader(in)))
		if err != nil {
			t.Fatalf("p.Records() error = %v, want nil", err)
		}
		if len(recs) != 1 {
			t.Fatalf("len(records) = %d, want 1", len(recs))
		}
	})

	t.Run("read error", func(t *testing.T) {
		t.Parallel()

		want := errors.New("broken pipe")
		r := iotest.ErrReader(want)

		_, _, err := collect(t, capture.ParseStream(r))
		if !errors.Is(err, want) {
			t.Errorf("p.Records() error = %v, want %v", err, want)
		}
	})

	t.Run("early break", func(t *testing.T) {
		t.Parallel()

		in := inviteBlock(hdrInvite, "CID1", "") + inviteBlock(hdrInvite2, "CID2", "")
		var n int
		for range capture.ParseStream(strings.NewReader(in)).Records() {
			n++
			break
		}
		if n != 1 {
			t.Errorf("iterations = %d, want 1", n)
		}
	})
}

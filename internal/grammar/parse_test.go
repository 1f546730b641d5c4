package grammar_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/sipflow/internal/grammar"
)

func TestParseCaptureHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  grammar.CaptureHeaderFields
		err   error
	}{
		{"empty", "", grammar.CaptureHeaderFields{}, grammar.ErrEmptyInput},
		{"garbage", "abc", grammar.CaptureHeaderFields{}, grammar.ErrMalformedInput},
		{
			"no arrow",
			"U 07/03/14 12:01:02.123456 10.0.0.1:5060 10.0.0.2:5060",
			grammar.CaptureHeaderFields{},
			grammar.ErrMalformedInput,
		},
		{
			"short usec",
			"U 07/03/14 12:01:02.1234 10.0.0.1:5060 -> 10.0.0.2:5060",
			grammar.CaptureHeaderFields{},
			grammar.ErrMalformedInput,
		},
		{
			"trailing space",
			"U 07/03/14 12:01:02.123456 10.0.0.1:5060 -> 10.0.0.2:5060 ",
			grammar.CaptureHeaderFields{},
			grammar.ErrMalformedInput,
		},
		{
			"udp",
			"U 07/03/14 12:01:02.123456 10.0.0.1:5060 -> 10.0.0.2:5080",
			grammar.CaptureHeaderFields{
				Dir:  "U",
				Date: "07/03/14",
				Time: "12:01:02.123456",
				Src:  "10.0.0.1:5060",
				Dst:  "10.0.0.2:5080",
			},
			nil,
		},
		{
			"tcp ipv6",
			"T 31/12/23 23:59:59.000001 2001:db8::1:5060 -> 2001:db8::2:5061",
			grammar.CaptureHeaderFields{
				Dir:  "T",
				Date: "31/12/23",
				Time: "23:59:59.000001",
				Src:  "2001:db8::1:5060",
				Dst:  "2001:db8::2:5061",
			},
			nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := grammar.ParseCaptureHeader(c.input)
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Errorf("grammar.ParseCaptureHeader(%q) error = %v, want %v", c.input, err, c.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("grammar.ParseCaptureHeader(%q) error = %v, want nil", c.input, err)
			}
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("grammar.ParseCaptureHeader(%q) = %+v, want %+v\ndiff (-got +want):\n%v", c.input, got, c.want, diff)
			}
		})
	}
}

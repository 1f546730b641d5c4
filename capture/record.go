package capture

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/internal/errorutil"
	"github.com/ghettovoice/sipflow/internal/util"
)

// Endpoint is a network endpoint of a captured packet.
type Endpoint struct {
	Host string
	Port uint16
}

// ParseEndpoint parses "host:port".
// The port is taken after the last colon, so bare IPv6 literals as printed by the capture tool are accepted.
func ParseEndpoint(s string) (Endpoint, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return Endpoint{}, errtrace.Wrap(errorutil.NewWrapperError(ErrMalformedAddr, "%q", s))
	}
	port, err := strconv.ParseUint(s[i+1:], 10, 16)
	if err != nil {
		return Endpoint{}, errtrace.Wrap(errorutil.NewWrapperError(ErrMalformedAddr, err))
	}
	return Endpoint{
		Host: strings.Trim(s[:i], "[]"),
		Port: uint16(port),
	}, nil
}

// String returns "host:port", IPv6 hosts are bracketed.
func (ep Endpoint) String() string {
	if ep.IsZero() {
		return ""
	}
	return net.JoinHostPort(ep.Host, strconv.Itoa(int(ep.Port)))
}

// Key returns the normalized address used to compare endpoints.
func (ep Endpoint) Key() string { return util.LCase(ep.String()) }

// Equal compares endpoints, host names are compared case-insensitively.
func (ep Endpoint) Equal(other Endpoint) bool {
	return ep.Port == other.Port && util.EqFold(ep.Host, other.Host)
}

// IsZero reports whether the endpoint is empty.
func (ep Endpoint) IsZero() bool { return ep.Host == "" && ep.Port == 0 }

func (ep Endpoint) LogValue() slog.Value { return slog.StringValue(ep.String()) }

// Record is one SIP message extracted from a captured packet.
//
// Records are immutable once parsed, consumers must not modify them.
type Record struct {
	// Dir is a protocol letter printed by the capture tool (U, T, ...).
	Dir string
	// Time is a packet capture time with microsecond precision.
	Time time.Time
	Src  Endpoint
	Dst  Endpoint
	// CallID is a session identifier of the message.
	CallID string
	// XCallID is a session identifier of the related call leg declared by the message (X-Call-ID, X-CID).
	XCallID string
	// Method is a request method or a response status code with reason phrase (e.g. "180 Ringing").
	Method string
	// Status is a response status code, zero for requests.
	Status  int
	Request bool
	From    string
	To      string
	CSeq    string
	// Payload contains the message lines.
	Payload []string
}

// TimeString formats the capture time the way the flow diagram prints it.
func (rec *Record) TimeString() string {
	if rec == nil {
		return ""
	}
	return rec.Time.Format("15:04:05.000000")
}

func (rec *Record) String() string {
	if rec == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s %s -> %s %s", rec.TimeString(), rec.Method, rec.Src, rec.Dst, rec.CallID)
}

func (rec *Record) LogValue() slog.Value {
	if rec == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Time("time", rec.Time),
		slog.String("call_id", rec.CallID),
		slog.String("method", rec.Method),
		slog.Any("src", rec.Src),
		slog.Any("dst", rec.Dst),
	)
}

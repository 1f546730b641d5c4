package grammar

import (
	"braces.dev/errtrace"
	"github.com/ghettovoice/abnf"

	"github.com/ghettovoice/sipflow/internal/errorutil"
)

func newMalformedInputErr(args ...any) error {
	return errorutil.NewWrapperError(ErrMalformedInput, args...) //errtrace:skip
}

// CaptureHeaderFields holds raw values of the capture header line.
type CaptureHeaderFields struct {
	Dir, Date, Time, Src, Dst string
}

// ParseCaptureHeader parses the header line of one captured packet block.
// The whole input must match, trailing garbage is an error.
func ParseCaptureHeader[T ~string | ~[]byte](s T) (CaptureHeaderFields, error) {
	if len(s) == 0 {
		return CaptureHeaderFields{}, errtrace.Wrap(ErrEmptyInput)
	}

	ns := abnf.NewNodes()
	defer ns.Free()

	if err := CaptureHeader([]byte(s), ns); err != nil {
		return CaptureHeaderFields{}, errtrace.Wrap(newMalformedInputErr(err))
	}

	n := ns.Best()
	if nl, il := n.Len(), len(s); nl < il {
		return CaptureHeaderFields{}, errtrace.Wrap(newMalformedInputErr("node length %d < input length %d", nl, il))
	}
	// values are copied out before the nodes are returned to the pool
	return CaptureHeaderFields{
		Dir:  MustGetNode(n, "dir").String(),
		Date: MustGetNode(n, "date").String(),
		Time: MustGetNode(n, "time").String(),
		Src:  MustGetNode(n, "src").String(),
		Dst:  MustGetNode(n, "dst").String(),
	}, nil
}

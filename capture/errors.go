package capture

import (
	"fmt"

	"github.com/ghettovoice/sipflow/internal/errorutil"
)

// Error represents a capture error.
// See [errorutil.Error].
type Error = errorutil.Error

// Common errors.
const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument
)

// Parse errors.
const (
	// ErrMalformedHeader is returned when a block header line does not match the capture header layout.
	ErrMalformedHeader Error = "malformed capture header"
	// ErrMalformedAddr is returned when an endpoint is not a "host:port" pair.
	ErrMalformedAddr Error = "malformed endpoint address"
	// ErrNotSIP is returned when a block payload does not start with a SIP request or status line.
	ErrNotSIP Error = "not a SIP message"
	// ErrNoCallID is returned when a SIP message has no Call-ID header.
	ErrNoCallID Error = "missing Call-ID header"
)

// Pipeline errors.
const (
	// ErrCaptureEnded is returned when the capture process exited or the capture was stopped.
	ErrCaptureEnded Error = "capture ended"
)

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

// ParseError represents a skipped capture block.
//
// It holds the cause and the line that caused it.
// Parse errors are recoverable, the stream continues with the next block.
type ParseError struct {
	Err  error
	Line string
}

func (err *ParseError) Error() string {
	if err == nil {
		return "<nil>"
	}
	if err.Line == "" {
		return fmt.Sprintf("parse error: %v", err.Err)
	}
	return fmt.Sprintf("parse error: %v (line %q)", err.Err, err.Line)
}

func (err *ParseError) Unwrap() error { return err.Err }

func (err *ParseError) Grammar() bool { return errorutil.IsGrammarErr(err.Err) }

package flow

import "github.com/ghettovoice/sipflow/internal/errorutil"

// Error represents a flow error.
// See [errorutil.Error].
type Error = errorutil.Error

const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument
	// ErrNoCorrelation is returned when a call has no resolvable partner call.
	ErrNoCorrelation Error = "call has no correlated call"
	// ErrNoSession is returned when a session operation is used before [Session.SetSession] succeeded.
	ErrNoSession Error = "no active session"
	// ErrUnhandledKey is returned by [Session.HandleKey] for keys the session does not handle.
	// Callers should fall through to their own key handling.
	ErrUnhandledKey Error = "unhandled key"
)

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

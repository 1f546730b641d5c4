package calls

import "github.com/ghettovoice/sipflow/internal/errorutil"

// Error represents a registry error.
// See [errorutil.Error].
type Error = errorutil.Error

const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument
	// ErrCallNotFound is returned when a call is not registered.
	ErrCallNotFound Error = "call not found"
)

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

package calls

import (
	"log/slog"
	"slices"

	"github.com/ghettovoice/sipflow/capture"
)

// Call is a set of messages sharing one Call-ID.
//
// Calls are created by the [Registry] only.
// Mutable state is guarded by the registry lock, so all methods are safe for concurrent use.
type Call struct {
	reg   *Registry
	id    string
	xid   string
	msgs  []*capture.Record
	xcall *Call
}

// ID returns the call Call-ID.
func (c *Call) ID() string { return c.id }

// XCallID returns the declared partner Call-ID.
// It is taken from the first message carrying the X-Call-ID header.
func (c *Call) XCallID() string {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()
	return c.xid
}

// Len returns the number of messages.
func (c *Call) Len() int {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()
	return len(c.msgs)
}

// Messages returns a snapshot of the call messages in arrival order.
func (c *Call) Messages() []*capture.Record {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()
	return slices.Clone(c.msgs)
}

// First returns the first message of the call.
func (c *Call) First() (*capture.Record, bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()
	if len(c.msgs) == 0 {
		return nil, false
	}
	return c.msgs[0], true
}

// Partner returns the linked call if the correlation was already resolved.
// It never scans the registry, see [Registry.ResolveCorrelation].
func (c *Call) Partner() (*Call, bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()
	return c.xcall, c.xcall != nil
}

func (c *Call) LogValue() slog.Value {
	if c == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("call_id", c.id),
		slog.String("x_call_id", c.XCallID()),
		slog.Int("messages", c.Len()),
	)
}

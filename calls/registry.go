package calls

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/internal/log"
)

// RegistryOptions contains registry options.
type RegistryOptions struct {
	// Log is a logger used to log new calls and correlations.
	// If nil, [log.Default] is used.
	Log *slog.Logger
}

func (o *RegistryOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Registry owns the captured calls.
//
// A single lock serializes mutation against concurrent reads.
// Registry implements [capture.Sink].
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	calls map[string]*Call
	order []*Call
}

var _ capture.Sink = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(opts *RegistryOptions) *Registry {
	return &Registry{
		log:   opts.log(),
		calls: make(map[string]*Call),
	}
}

// AddMessage appends rec to the call with rec's Call-ID, creating the call on first sight.
// Records are appended in the order they are added, no reordering is performed.
func (r *Registry) AddMessage(rec *capture.Record) error {
	if rec == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil record"))
	}
	if rec.CallID == "" {
		return errtrace.Wrap(NewInvalidArgumentError("empty Call-ID"))
	}

	r.mu.Lock()
	c, ok := r.calls[rec.CallID]
	if !ok {
		c = &Call{reg: r, id: rec.CallID}
		r.calls[c.id] = c
		r.order = append(r.order, c)
	}
	if c.xid == "" && rec.XCallID != "" && rec.XCallID != c.id {
		c.xid = rec.XCallID
	}
	c.msgs = append(c.msgs, rec)
	r.mu.Unlock()

	if !ok {
		r.log.LogAttrs(context.Background(), slog.LevelDebug, "new call",
			slog.String("call_id", rec.CallID),
			slog.String("x_call_id", rec.XCallID),
		)
	}
	return nil
}

// GetCall returns the call by Call-ID.
func (r *Registry) GetCall(id string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	return c, ok
}

// Call returns the call by Call-ID or [ErrCallNotFound].
func (r *Registry) Call(id string) (*Call, error) {
	c, ok := r.GetCall(id)
	if !ok {
		return nil, errtrace.Wrap(ErrCallNotFound)
	}
	return c, nil
}

// Calls returns all calls in creation order.
func (r *Registry) Calls() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ResolveCorrelation returns the call linked to c.
//
// A cached link is returned as is. Otherwise the call named by c's X-Call-ID is looked up,
// then calls are scanned in creation order for one whose X-Call-ID names c.
// Calls already linked to another call are skipped.
// The first match is linked to c symmetrically and the link never changes afterwards.
// Misses are not cached: the partner may arrive later.
func (r *Registry) ResolveCorrelation(c *Call) (*Call, bool) {
	if c == nil || c.reg != r {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c.xcall != nil {
		return c.xcall, true
	}

	x := r.findPartner(c)
	if x == nil {
		return nil, false
	}
	c.xcall, x.xcall = x, c

	r.log.LogAttrs(context.Background(), slog.LevelDebug, "calls correlated",
		slog.String("call_id", c.id),
		slog.String("partner_call_id", x.id),
	)
	return x, true
}

func (r *Registry) findPartner(c *Call) *Call {
	linkable := func(x *Call) bool {
		return x != nil && x != c && x.xcall == nil
	}

	if c.xid != "" {
		if x := r.calls[c.xid]; linkable(x) {
			return x
		}
	}
	for _, x := range r.order {
		if linkable(x) && x.xid == c.id {
			return x
		}
	}
	return nil
}

// Snapshot returns the messages of the given calls taken under one read lock,
// so the result is consistent across calls.
func (r *Registry) Snapshot(cs ...*Call) [][]*capture.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][]*capture.Record, len(cs))
	for i, c := range cs {
		if c != nil && c.reg == r {
			out[i] = slices.Clone(c.msgs)
		}
	}
	return out
}

package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/sipflow/internal/errorutil"
	"github.com/ghettovoice/sipflow/internal/log"
)

// ErrCaptureStopped is a cause of [ErrCaptureEnded] when the capture was stopped by [Pipeline.Stop]
// or by the context cancellation.
const ErrCaptureStopped Error = "capture stopped"

// DefaultCommand is a capture tool started by default.
const DefaultCommand = "ngrep"

// ForcedArgs returns the capture tool arguments that are always passed first:
// quiet output, no promiscuous mode, absolute timestamps, one payload line per line.
// They produce the header layout [ParseHeader] expects.
func ForcedArgs() []string { return []string{"-q", "-p", "-t", "-W", "byline"} }

var layoutArgs = map[string]string{
	"-T": "relative timestamps replace the absolute ones",
	"-x": "hex dump replaces the text payload",
	"-X": "match expression is read as hex",
	"-W": "payload line mode is forced to byline",
	"-O": "packets are dumped to a file",
}

// CheckArgs returns warnings for extra capture arguments that change the header layout
// or the payload format. Such arguments break parsing silently.
func CheckArgs(args []string) []string {
	var warns []string
	for _, a := range args {
		if len(a) < 2 || a[0] != '-' || a[1] == '-' {
			continue
		}
		// short flags may be grouped: -qT
		for _, c := range a[1:] {
			if w, ok := layoutArgs["-"+string(c)]; ok {
				warns = append(warns, a+": "+w)
				break
			}
		}
	}
	return warns
}

// Sink receives parsed records.
type Sink interface {
	AddMessage(rec *Record) error
}

// Notifier receives refresh notifications.
// It is called only after the record is stored to the [Sink].
type Notifier interface {
	Notify(rec *Record)
}

// NotifierFunc is a function adapter for the [Notifier] interface.
type NotifierFunc func(rec *Record)

func (fn NotifierFunc) Notify(rec *Record) { fn(rec) }

// PipelineOptions contains pipeline options.
type PipelineOptions struct {
	// Command is a capture tool executable.
	// Default is [DefaultCommand].
	Command string
	// Device is a network interface to capture on.
	// If empty, the tool default is used.
	Device string
	// Filter is a filter expression appended after all other arguments.
	Filter string
	// Args are extra arguments appended after [ForcedArgs].
	// Arguments reported by [CheckArgs] are passed as is, a warning is logged.
	Args []string
	// NotifyInterval batches notifications: at most one notification per interval is sent,
	// with the latest stored record.
	// If zero, the notifier is called after each record.
	NotifyInterval time.Duration
	// Starter spawns the capture process.
	// If nil, [ExecStarter] is used.
	Starter Starter
	// Notifier receives refresh notifications.
	// If nil, notifications are not sent.
	Notifier Notifier
	// Log is a logger used to log pipeline events, warnings and errors.
	// If nil, [log.Default] is used.
	Log *slog.Logger
}

func (o *PipelineOptions) command() string {
	if o == nil || o.Command == "" {
		return DefaultCommand
	}
	return o.Command
}

func (o *PipelineOptions) starter() Starter {
	if o == nil || o.Starter == nil {
		return ExecStarter{}
	}
	return o.Starter
}

func (o *PipelineOptions) notifier() Notifier {
	if o == nil {
		return nil
	}
	return o.Notifier
}

func (o *PipelineOptions) notifyInterval() time.Duration {
	if o == nil || o.NotifyInterval < 0 {
		return 0
	}
	return o.NotifyInterval
}

func (o *PipelineOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// PipelineState is a lifecycle state of the [Pipeline].
type PipelineState string

const (
	PipelineIdle     PipelineState = "idle"
	PipelineRunning  PipelineState = "running"
	PipelineStopping PipelineState = "stopping"
	PipelineEnded    PipelineState = "ended"
)

type pipelineTrigger string

const (
	triggerStart pipelineTrigger = "start"
	triggerStop  pipelineTrigger = "stop"
	triggerExit  pipelineTrigger = "exit"
)

// Pipeline runs the capture tool and feeds parsed records to the [Sink].
//
// A pipeline runs once: after the capture ends it stays in [PipelineEnded] state
// and is never restarted.
type Pipeline struct {
	id   uuid.UUID
	sink Sink
	opts PipelineOptions
	log  *slog.Logger

	mu    sync.Mutex
	fsm   *stateless.StateMachine
	abort func() error
}

// NewPipeline creates a new pipeline storing records to sink.
func NewPipeline(sink Sink, opts *PipelineOptions) (*Pipeline, error) {
	if sink == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("nil sink"))
	}

	p := &Pipeline{
		id:   uuid.New(),
		sink: sink,
	}
	if opts != nil {
		p.opts = *opts
		p.opts.Args = slices.Clone(opts.Args)
	}
	p.log = p.opts.log().With(slog.String("capture_id", p.id.String()))
	p.fsm = newPipelineFSM(p.log)

	for _, w := range CheckArgs(p.opts.Args) {
		p.log.LogAttrs(context.Background(), slog.LevelWarn,
			"capture argument may break the header layout",
			slog.String("warning", w),
		)
	}
	return p, nil
}

func newPipelineFSM(logger *slog.Logger) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(PipelineIdle)
	fsm.Configure(PipelineIdle).
		Permit(triggerStart, PipelineRunning).
		Permit(triggerStop, PipelineEnded)
	fsm.Configure(PipelineRunning).
		Permit(triggerStop, PipelineStopping).
		Permit(triggerExit, PipelineEnded)
	fsm.Configure(PipelineStopping).
		Ignore(triggerStop).
		Permit(triggerExit, PipelineEnded)
	fsm.Configure(PipelineEnded).
		Ignore(triggerStop)
	fsm.OnTransitioned(func(ctx context.Context, t stateless.Transition) {
		logger.LogAttrs(ctx, slog.LevelDebug, "capture state changed",
			slog.Any("from", t.Source),
			slog.Any("to", t.Destination),
			slog.Any("trigger", t.Trigger),
		)
	})
	return fsm
}

// ID returns the pipeline identifier attached to its log records.
func (p *Pipeline) ID() string { return p.id.String() }

// Args returns the full argument list of the capture tool:
// [ForcedArgs], the device, extra arguments and the filter expression.
func (p *Pipeline) Args() []string {
	args := ForcedArgs()
	if p.opts.Device != "" {
		args = append(args, "-d", p.opts.Device)
	}
	args = append(args, p.opts.Args...)
	return append(args, strings.Fields(p.opts.Filter)...)
}

// State returns the current lifecycle state.
func (p *Pipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state()
}

func (p *Pipeline) state() PipelineState {
	return p.fsm.MustState().(PipelineState) //nolint:forcetypeassert
}

func (p *Pipeline) fire(ctx context.Context, trigger pipelineTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errtrace.Wrap(p.fsm.FireCtx(ctx, trigger))
}

// Run starts the capture tool and ingests its output until the process exits,
// the read fails, [Pipeline.Stop] is called or ctx is canceled.
//
// Run blocks and always returns an error wrapping [ErrCaptureEnded];
// the cause is the process exit error, the read error or [ErrCaptureStopped].
// Records stored before the capture ended are kept.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.fire(ctx, triggerStart); err != nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrCaptureEnded, err))
	}

	cmd, args := p.opts.command(), p.Args()
	proc, err := p.opts.starter().Start(ctx, cmd, args...)
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to start the capture tool",
			slog.String("command", cmd),
			slog.Any("args", args),
			slog.Any("error", err),
		)
		p.exit(ctx)
		return errtrace.Wrap(errorutil.NewWrapperError(ErrCaptureEnded, err))
	}

	p.log.LogAttrs(ctx, slog.LevelInfo, "capture tool started",
		slog.String("command", cmd),
		slog.Any("args", args),
	)
	return errtrace.Wrap(p.serve(ctx, proc.Stdout(), proc.Kill, proc.Wait))
}

// RunReader ingests capture text from r instead of a spawned process, e.g. a saved capture.
// If r implements [io.Closer], it is closed on stop to unblock the read.
// See [Pipeline.Run] for the returned error.
func (p *Pipeline) RunReader(ctx context.Context, r io.Reader) error {
	if r == nil {
		return errtrace.Wrap(NewInvalidArgumentError("nil reader"))
	}
	if err := p.fire(ctx, triggerStart); err != nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrCaptureEnded, err))
	}

	var abort func() error
	if c, ok := r.(io.Closer); ok {
		abort = c.Close
	}
	return errtrace.Wrap(p.serve(ctx, r, abort, nil))
}

func (p *Pipeline) serve(ctx context.Context, r io.Reader, abort, wait func() error) error {
	p.attach(abort)

	stopWatch := context.AfterFunc(ctx, p.Stop)
	defer stopWatch()

	readErr := p.ingest(ctx, r, abort != nil)
	if readErr != nil && abort != nil {
		// the process may still be alive after a broken read
		if err := abort(); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to abort the capture", slog.Any("error", err))
		}
	}

	var waitErr error
	if wait != nil {
		waitErr = wait()
		if exitErr := (*exec.ExitError)(nil); errors.As(waitErr, &exitErr) {
			p.log.LogAttrs(ctx, slog.LevelDebug, "capture tool exited", slog.Any("process", exitErr))
		}
	}

	var cause error
	switch {
	case p.State() == PipelineStopping:
		cause = ErrCaptureStopped
	case readErr != nil:
		cause = readErr
	default:
		cause = waitErr
	}
	p.exit(ctx)

	p.log.LogAttrs(ctx, slog.LevelInfo, "capture ended", slog.Any("error", cause))
	if cause == nil {
		return errtrace.Wrap(ErrCaptureEnded)
	}
	return errtrace.Wrap(errorutil.NewWrapperError(ErrCaptureEnded, cause))
}

func (p *Pipeline) attach(abort func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abort = abort
	if p.state() == PipelineStopping && abort != nil {
		// stop was requested while the process was starting
		if err := abort(); err != nil {
			p.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to abort the capture", slog.Any("error", err))
		}
	}
}

func (p *Pipeline) exit(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abort = nil
	if err := p.fsm.FireCtx(ctx, triggerExit); err != nil {
		p.log.LogAttrs(ctx, slog.LevelDebug, "unexpected capture state", slog.Any("error", err))
	}
}

// Stop requests the capture to stop: the process is killed and [Pipeline.Run] returns promptly.
// Blocks the process printed before it was killed are still parsed and stored.
// A reader passed to [Pipeline.RunReader] is drained the same way if it is an [io.Closer],
// otherwise ingestion ends after the current record.
// Stop is safe to call concurrently and more than once.
// Stopping an idle pipeline prevents it from running.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fsm.Fire(triggerStop); err != nil {
		p.log.LogAttrs(context.Background(), slog.LevelDebug, "stop ignored", slog.Any("error", err))
		return
	}
	if p.abort == nil {
		return
	}
	if err := p.abort(); err != nil {
		p.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to abort the capture", slog.Any("error", err))
	}
}

// ingest stores records until r ends.
// With drain set, a stop aborts the source and the records already read are still stored
// until r reports the end, otherwise it returns after the current record.
func (p *Pipeline) ingest(ctx context.Context, r io.Reader, drain bool) error {
	n := newBatchNotifier(p.opts.notifier(), p.opts.notifyInterval())
	defer n.close()

	for rec, err := range ParseStream(r).Records() {
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				p.log.LogAttrs(ctx, slog.LevelDebug, "capture block skipped", slog.Any("error", err))
				continue
			}
			lvl := slog.LevelError
			if p.State() == PipelineStopping {
				// the aborted source fails the pending read
				lvl = slog.LevelDebug
			}
			p.log.LogAttrs(ctx, lvl, "failed to read the capture", slog.Any("error", err))
			return errtrace.Wrap(err)
		}

		if err := p.sink.AddMessage(rec); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to store the message",
				slog.Any("message", rec),
				slog.Any("error", err),
			)
			continue
		}
		n.notify(rec)

		if !drain && p.State() == PipelineStopping {
			return nil
		}
	}
	return nil
}

// batchNotifier forwards notifications directly or, with a positive interval,
// sends the latest record once per tick.
type batchNotifier struct {
	n        Notifier
	interval time.Duration

	mu   sync.Mutex
	last *Record
	stop chan struct{}
	done chan struct{}
}

func newBatchNotifier(n Notifier, interval time.Duration) *batchNotifier {
	bn := &batchNotifier{n: n, interval: interval}
	if n != nil && interval > 0 {
		bn.stop = make(chan struct{})
		bn.done = make(chan struct{})
		go bn.run()
	}
	return bn
}

func (bn *batchNotifier) run() {
	defer close(bn.done)
	tick := time.NewTicker(bn.interval)
	defer tick.Stop()
	for {
		select {
		case <-bn.stop:
			return
		case <-tick.C:
			bn.flush()
		}
	}
}

func (bn *batchNotifier) notify(rec *Record) {
	if bn.n == nil {
		return
	}
	if bn.stop == nil {
		bn.n.Notify(rec)
		return
	}
	bn.mu.Lock()
	bn.last = rec
	bn.mu.Unlock()
}

func (bn *batchNotifier) flush() {
	bn.mu.Lock()
	rec := bn.last
	bn.last = nil
	bn.mu.Unlock()
	if rec != nil {
		bn.n.Notify(rec)
	}
}

func (bn *batchNotifier) close() {
	if bn.stop == nil {
		return
	}
	close(bn.stop)
	<-bn.done
	bn.flush()
}

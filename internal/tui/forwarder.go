package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ghettovoice/sipflow/capture"
)

// Sender delivers messages to the program loop, see [tea.Program.Send].
type Sender interface {
	Send(msg tea.Msg)
}

// Forwarder is a [capture.Notifier] that forwards stored records to the program.
//
// Notify never waits for the program: records stored while the program is busy
// are queued and delivered together in one [RecordMsg] by a separate goroutine.
type Forwarder struct {
	s Sender

	mu      sync.Mutex
	pending []*capture.Record

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewForwarder creates a forwarder sending to s and starts its delivery goroutine.
// Call [Forwarder.Close] to stop it.
func NewForwarder(s Sender) *Forwarder {
	f := &Forwarder{
		s:    s,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go f.run()
	return f
}

// Notify queues rec for delivery.
func (f *Forwarder) Notify(rec *capture.Record) {
	f.mu.Lock()
	f.pending = append(f.pending, rec)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		recs := f.pending
		f.pending = nil
		f.mu.Unlock()
		if len(recs) > 0 {
			f.s.Send(RecordMsg{Recs: recs})
		}
	}
}

// Close stops the delivery goroutine, queued records are dropped.
// It waits for a send in progress; [tea.Program.Send] returns once the program exits.
func (f *Forwarder) Close() {
	f.once.Do(func() { close(f.stop) })
	<-f.done
}
